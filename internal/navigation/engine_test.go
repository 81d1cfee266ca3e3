package navigation

import (
	"context"
	"errors"
	"testing"

	"variantcache/internal/cache"
	"variantcache/internal/session"
	"variantcache/internal/transcript"
	"variantcache/internal/variant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *Engine
	pipeline *transcript.Pipeline
	adapter  *cache.Adapter
	conv     *transcript.Conversation
	key      session.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files := transcript.NewFileStore(t.TempDir())
	adapter := cache.NewAdapter(files)
	engine := NewEngine(session.NewManager(adapter))
	pipeline := transcript.NewPipeline()
	pipeline.Subscribe(engine)

	conv := &transcript.Conversation{
		ID:          "c1",
		Participant: "alice",
		Mode:        transcript.ModeChat,
		History:     transcript.NewHistory(),
	}
	return &fixture{
		engine:   engine,
		pipeline: pipeline,
		adapter:  adapter,
		conv:     conv,
		key:      session.Key{Participant: "alice", Conversation: "c1", Mode: transcript.ModeChat},
	}
}

func (f *fixture) reply(t *testing.T) string {
	t.Helper()
	p, ok := f.conv.History.Text(0, variant.RoleAssistant)
	require.True(t, ok)
	return p.Internal
}

func TestScenario_RegenerateAndRetreat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Equal(t, variant.Position{}, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant))

	f.pipeline.DummyReply(ctx, f.conv, "Hi")
	assert.Equal(t, variant.Position{Selected: 0, Total: 1}, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant))

	_, err := f.pipeline.Regenerate(ctx, f.conv, "Hello")
	require.NoError(t, err)
	assert.Equal(t, variant.Position{Selected: 1, Total: 2}, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant))

	out := f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)
	assert.Equal(t, Outcome{Position: variant.Position{Selected: 0, Total: 2}, Moved: true, Mirrored: true}, out)
	assert.Equal(t, "Hi", f.reply(t))

	out = f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)
	assert.Equal(t, Outcome{Position: variant.Position{Selected: 0, Total: 2}}, out)
	assert.Equal(t, "Hi", f.reply(t))
}

func TestNavigate_ClampsAtUpperBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "one")
	f.pipeline.Regenerate(ctx, f.conv, "two")

	out := f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Advance, f.conv.History)
	assert.False(t, out.Moved)
	assert.Equal(t, variant.Position{Selected: 1, Total: 2}, out.Position)
	assert.Equal(t, "two", f.reply(t))
}

func TestNavigate_UnknownTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "one")
	f.pipeline.Regenerate(ctx, f.conv, "two")

	tests := []struct {
		name string
		turn int
		role variant.Role
		dir  Direction
	}{
		{"turn out of range", 5, variant.RoleAssistant, Retreat},
		{"negative turn", -1, variant.RoleAssistant, Retreat},
		{"role without variants", 0, variant.RoleUser, Retreat},
		{"invalid role", 0, variant.Role(7), Retreat},
		{"unknown direction", 0, variant.RoleAssistant, Direction("sideways")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.engine.Navigate(ctx, f.key, tt.turn, tt.role, tt.dir, f.conv.History)
			assert.False(t, out.Moved)
			assert.False(t, out.Mirrored)
			assert.Equal(t, "two", f.reply(t))
		})
	}
}

func TestNavigate_PersistsSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "one")
	f.pipeline.Regenerate(ctx, f.conv, "two")

	f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)

	path, err := f.adapter.ResolvePath("c1", "alice", transcript.ModeChat)
	require.NoError(t, err)
	onDisk := f.adapter.Load(path)
	assert.Equal(t, variant.Position{Selected: 0, Total: 2}, onDisk.PositionsOf(0, variant.RoleAssistant))
}

func TestNavigate_IncompleteVariantNotMirrored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "good")

	f.engine.Sessions().Do(f.key, func(s *variant.Store) bool {
		s.AppendVariant(0, variant.RoleAssistant, "raw only", "")
		return true
	})
	f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)

	out := f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Advance, f.conv.History)
	assert.True(t, out.Moved)
	assert.False(t, out.Mirrored)
	assert.Equal(t, "good", f.reply(t))
}

func TestNavigate_MirrorsBothViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "a <b>")
	f.pipeline.Regenerate(ctx, f.conv, "plain")

	f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)

	p, _ := f.conv.History.Text(0, variant.RoleAssistant)
	assert.Equal(t, variant.Pair{Internal: "a <b>", Visible: "a &lt;b&gt;"}, p)
}

func TestNavigate_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.pipeline.DummyReply(context.Background(), f.conv, "one")
	f.pipeline.Regenerate(context.Background(), f.conv, "two")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := f.engine.Navigate(ctx, f.key, 0, variant.RoleAssistant, Retreat, f.conv.History)
	assert.Equal(t, Outcome{}, out)
	assert.Equal(t, "two", f.reply(t))
}

func TestRecord_SkipsEmptyVisible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.SendUser(ctx, f.conv, "question")

	assert.False(t, f.engine.Record(ctx, f.key, 0, variant.RoleAssistant, f.conv.History))
	assert.False(t, f.engine.Record(ctx, f.key, 9, variant.RoleUser, f.conv.History))
	assert.Equal(t, variant.Position{Selected: 0, Total: 1}, f.engine.Positions(ctx, f.key, 0, variant.RoleUser))
}

func TestRecord_Sparse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.conv.History.Internal = append(f.conv.History.Internal, [2]string{"", ""})
		f.conv.History.Visible = append(f.conv.History.Visible, [2]string{"", ""})
	}
	f.conv.History.SetText(2, variant.RoleAssistant, variant.Pair{Internal: "late", Visible: "late"})

	require.True(t, f.engine.Record(ctx, f.key, 2, variant.RoleAssistant, f.conv.History))

	all := f.engine.PositionsAll(ctx, f.key, 3)
	require.Len(t, all, 3)
	assert.Equal(t, variant.TurnPositions{}, all[0])
	assert.Equal(t, variant.Position{Selected: 0, Total: 1}, all[2][variant.RoleAssistant])
}

func TestSuppress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	release := f.engine.Suppress()
	inner := f.engine.Suppress()
	f.pipeline.DummyReply(ctx, f.conv, "hidden")
	inner()
	inner()
	assert.True(t, f.engine.Suppressed(), "outer guard still held")
	release()
	assert.False(t, f.engine.Suppressed())

	assert.Equal(t, variant.Position{}, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant))
}

func TestSuppress_RestoredOnPanic(t *testing.T) {
	f := newFixture(t)

	assert.Panics(t, func() {
		_ = f.engine.runSuppressed(func() error { panic("boom") })
	})
	assert.False(t, f.engine.Suppressed())
}

func TestReplaceLastReply_RecordsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "draft")

	recorded, err := f.engine.ReplaceLastReply(ctx, f.key, f.conv.History, func() error {
		_, err := f.pipeline.ReplaceLastReply(ctx, f.conv, "final")
		return err
	})
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, variant.Position{Selected: 1, Total: 2}, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant))
}

func TestReplaceLastReply_Unchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipeline.DummyReply(ctx, f.conv, "same")

	recorded, err := f.engine.ReplaceLastReply(ctx, f.key, f.conv.History, func() error {
		_, err := f.pipeline.ReplaceLastReply(ctx, f.conv, "same")
		return err
	})
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, 1, f.engine.Positions(ctx, f.key, 0, variant.RoleAssistant).Total)
}

func TestReplaceLastReply_Error(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	wantErr := errors.New("nope")

	recorded, err := f.engine.ReplaceLastReply(ctx, f.key, f.conv.History, func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, recorded)
	assert.False(t, f.engine.Suppressed())
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"advance": Advance, "Right": Advance, "next": Advance,
		"retreat": Retreat, "left": Retreat, "prev": Retreat, " previous ": Retreat,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("up")
	assert.Error(t, err)
}
