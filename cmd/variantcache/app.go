package main

import (
	"context"
	"fmt"
	"sync"

	"variantcache/internal/cache"
	"variantcache/internal/config"
	"variantcache/internal/navigation"
	"variantcache/internal/render"
	"variantcache/internal/session"
	"variantcache/internal/transcript"
	"variantcache/internal/variant"

	"go.uber.org/zap"
)

// application wires the transcript store, the cache and the navigation
// engine for one CLI invocation.
type application struct {
	cfg      *config.Config
	files    *transcript.FileStore
	adapter  *cache.Adapter
	sessions *session.Manager
	engine   *navigation.Engine
	pipeline *transcript.Pipeline
	renderer *render.Renderer

	mu       sync.Mutex
	current  session.Key
	deleted  bool
	onChange func()
}

func newApplication(cfg *config.Config) (*application, error) {
	files := transcript.NewFileStore(cfg.DataDir)
	adapter := cache.NewAdapter(files,
		cache.WithIndent(cfg.Cache.Indent),
		cache.WithFileMode(cfg.GetFileMode()),
	)
	sessions := session.NewManager(adapter)
	engine := navigation.NewEngine(sessions)
	pipeline := transcript.NewPipeline()

	pipeline.Subscribe(engine)

	renderer, err := render.New(render.Options{
		Theme:    cfg.Render.Theme,
		Markdown: cfg.Render.Markdown,
		Width:    cfg.Render.Width,
	})
	if err != nil {
		logger.Warn("Markdown rendering unavailable", zap.Error(err))
	}

	a := &application{
		cfg:      cfg,
		files:    files,
		adapter:  adapter,
		sessions: sessions,
		engine:   engine,
		pipeline: pipeline,
		renderer: renderer,
		current:  session.Key{Participant: participant, Conversation: conversation, Mode: mode},
	}
	files.Subscribe(a)
	return a, nil
}

// key returns the conversation this invocation works on. It follows
// renames reported while the command runs.
func (a *application) key() session.Key {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// gone reports whether the selected conversation was deleted while the
// command ran.
func (a *application) gone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deleted
}

// ConversationRenamed moves the cache and, when the renamed conversation
// is the selected one, makes the new id current.
func (a *application) ConversationRenamed(participant, mode, oldID, newID string) {
	a.sessions.ConversationRenamed(participant, mode, oldID, newID)

	a.mu.Lock()
	follow := a.isCurrentLocked(participant, mode, oldID)
	if follow {
		a.current.Conversation = newID
	}
	notify := a.onChange
	a.mu.Unlock()

	if follow {
		logger.Info("Following renamed conversation", zap.String("from", oldID), zap.String("to", newID))
		if notify != nil {
			notify()
		}
	}
}

// ConversationDeleted removes the cache and marks the selected
// conversation gone when it was the one deleted.
func (a *application) ConversationDeleted(participant, mode, id string) {
	a.sessions.ConversationDeleted(participant, mode, id)

	a.mu.Lock()
	hit := a.isCurrentLocked(participant, mode, id)
	if hit {
		a.deleted = true
	}
	notify := a.onChange
	a.mu.Unlock()

	if hit {
		logger.Info("Selected conversation deleted", zap.String("id", id))
		if notify != nil {
			notify()
		}
	}
}

// isCurrentLocked compares history paths, since participants share the
// instruct directory.
func (a *application) isCurrentLocked(participant, mode, id string) bool {
	if a.current.Conversation == "" {
		return false
	}
	cur, err := a.files.HistoryPath(a.current.Conversation, a.current.Participant, a.current.Mode)
	if err != nil {
		return false
	}
	other, err := a.files.HistoryPath(id, participant, mode)
	return err == nil && cur == other
}

// watchChanges registers fn to run after the selected conversation is
// renamed or deleted.
func (a *application) watchChanges(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// open loads the selected conversation.
func (a *application) open() (*transcript.Conversation, error) {
	key := a.key()
	if key.Conversation == "" {
		return nil, fmt.Errorf("no conversation selected (use --conversation)")
	}
	h, err := a.files.Load(key.Conversation, key.Participant, key.Mode)
	if err != nil {
		return nil, err
	}
	return &transcript.Conversation{
		ID:          key.Conversation,
		Participant: key.Participant,
		Mode:        key.Mode,
		History:     h,
	}, nil
}

func (a *application) save(c *transcript.Conversation) error {
	return a.files.Save(c.History, c.ID, c.Participant, c.Mode)
}

// positions returns the navigation state of every message of c. A
// deleted conversation has none; reading it would recreate its cache.
func (a *application) positions(ctx context.Context, c *transcript.Conversation) []variant.TurnPositions {
	if a.gone() {
		return nil
	}
	return a.engine.PositionsAll(ctx, a.key(), c.History.Len())
}

func (a *application) close() {
	if !a.sessions.Flush() {
		if logger != nil {
			logger.Warn("Failed to persist the active cache on exit")
		}
	}
}
