package transcript

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"variantcache/internal/variant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleEvent struct {
	kind        string
	participant string
	mode        string
	oldID       string
	newID       string
}

type recordingObserver struct {
	mu     sync.Mutex
	events []lifecycleEvent
}

func (r *recordingObserver) ConversationRenamed(participant, mode, oldID, newID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, lifecycleEvent{"rename", participant, mode, oldID, newID})
}

func (r *recordingObserver) ConversationDeleted(participant, mode, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, lifecycleEvent{"delete", participant, mode, id, ""})
}

func TestFileStore_Paths(t *testing.T) {
	s := NewFileStore("/data")

	tests := []struct {
		name        string
		participant string
		mode        string
		want        string
	}{
		{"chat nests participant", "alice", ModeChat, "/data/chat/alice/c1.json"},
		{"empty mode means chat", "alice", "", "/data/chat/alice/c1.json"},
		{"instruct is shared", "alice", ModeInstruct, "/data/instruct/c1.json"},
		{"custom mode nests participant", "bob", "chat-instruct", "/data/chat-instruct/bob/c1.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HistoryPath("c1", tt.participant, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s := NewFileStore(t.TempDir())

	for _, id := range []string{"", "..", "a/b", `a\b`, "  "} {
		_, err := s.HistoryPath(id, "alice", ModeChat)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}
	_, err := s.HistoryPath("c1", "../etc", ModeChat)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFileStore_CreateSaveLoad(t *testing.T) {
	s := NewFileStore(t.TempDir())

	id, h, err := s.Create("alice", ModeChat)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	h.appendRow("Hi", "Hello")
	require.NoError(t, s.Save(h, id, "alice", ModeChat))

	loaded, err := s.Load(id, "alice", ModeChat)
	require.NoError(t, err)
	assert.Equal(t, h, loaded)

	_, err = s.Load("missing", "alice", ModeChat)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	s := NewFileStore(t.TempDir())
	path, err := s.HistoryPath("bad", "alice", ModeChat)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = s.Load("bad", "alice", ModeChat)
	assert.Error(t, err)
}

func TestFileStore_RenameNotifies(t *testing.T) {
	s := NewFileStore(t.TempDir())
	obs := &recordingObserver{}
	s.Subscribe(obs)

	id, h, err := s.Create("alice", ModeChat)
	require.NoError(t, err)
	h.appendRow("q", "a")
	require.NoError(t, s.Save(h, id, "alice", ModeChat))

	require.NoError(t, s.Rename(id, "renamed", "alice", ModeChat))

	_, err = s.Load(id, "alice", ModeChat)
	assert.ErrorIs(t, err, ErrNotFound)
	moved, err := s.Load("renamed", "alice", ModeChat)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Len())

	require.Len(t, obs.events, 1)
	assert.Equal(t, lifecycleEvent{"rename", "alice", ModeChat, id, "renamed"}, obs.events[0])
}

func TestFileStore_RenameErrors(t *testing.T) {
	s := NewFileStore(t.TempDir())
	obs := &recordingObserver{}
	s.Subscribe(obs)

	a, _, err := s.Create("alice", ModeChat)
	require.NoError(t, err)
	b, _, err := s.Create("alice", ModeChat)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Rename(a, a, "alice", ModeChat), ErrSamePath)
	assert.ErrorIs(t, s.Rename(a, b, "alice", ModeChat), ErrExists)
	assert.ErrorIs(t, s.Rename("ghost", "other", "alice", ModeChat), ErrNotFound)
	assert.Empty(t, obs.events)
}

func TestFileStore_DeleteNotifies(t *testing.T) {
	s := NewFileStore(t.TempDir())
	obs := &recordingObserver{}
	s.Subscribe(obs)

	id, _, err := s.Create("", ModeInstruct)
	require.NoError(t, err)
	require.NoError(t, s.Delete(id, "", ModeInstruct))

	assert.ErrorIs(t, s.Delete(id, "", ModeInstruct), ErrNotFound)
	require.Len(t, obs.events, 1)
	assert.Equal(t, "delete", obs.events[0].kind)
	assert.Equal(t, id, obs.events[0].oldID)
}

func TestFileStore_ListSkipsCachesAndTemps(t *testing.T) {
	s := NewFileStore(t.TempDir())

	ids, err := s.List("alice", ModeChat)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"b", "a"} {
		require.NoError(t, s.Save(NewHistory(), id, "alice", ModeChat))
	}
	dir, err := s.Dir("alice", ModeChat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json.cache"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json.tmp.123"), []byte("{}"), 0o644))

	ids, err = s.List("alice", ModeChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestHistoryID(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"abc.json", "abc", true},
		{"/x/y/abc.json", "abc", true},
		{"abc.json.cache", "", false},
		{"abc.json.tmp.99", "", false},
		{"notes.txt", "", false},
		{".json", "", false},
	}
	for _, tt := range tests {
		got, ok := HistoryID(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestHistory_TextRoundTripsThroughStore(t *testing.T) {
	s := NewFileStore(t.TempDir())
	h := NewHistory()
	h.appendRow("<tag>", "")
	require.NoError(t, s.Save(h, "c", "alice", ModeChat))

	loaded, err := s.Load("c", "alice", ModeChat)
	require.NoError(t, err)
	p, ok := loaded.Text(0, variant.RoleUser)
	require.True(t, ok)
	assert.Equal(t, variant.Pair{Internal: "<tag>", Visible: "&lt;tag&gt;"}, p)
}
