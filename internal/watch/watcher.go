// Package watch turns filesystem changes to history files into
// conversation lifecycle events, so caches follow histories that are
// renamed or deleted by other programs.
package watch

import (
	"context"
	"os"
	"sync"
	"time"

	"variantcache/internal/fsutil"
	"variantcache/internal/logging"
	"variantcache/internal/transcript"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the lifecycle events the watcher infers.
type Handler interface {
	ConversationRenamed(participant, mode, oldID, newID string)
	ConversationDeleted(participant, mode, id string)
}

// Stats counts watcher activity.
type Stats struct {
	Renames       int
	Deletes       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// Watcher watches one history directory. A history that disappears is a
// delete; one that is renamed and followed by a new history within the
// debounce window is a rename.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	participant string
	mode        string
	handler     Handler
	debounce    time.Duration
	pending     map[string]time.Time // id -> when it was renamed away
	known       map[string]bool      // histories present in dir
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for dir, which holds the histories of
// (participant, mode).
func New(dir, participant, mode string, h Handler, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		participant: participant,
		mode:        mode,
		handler:     h,
		debounce:    debounce,
		pending:     make(map[string]time.Time),
		known:       make(map[string]bool),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, fsutil.DirPerm); err != nil {
		logging.WatchError("Failed to create %s: %v", w.dir, err)
	}
	w.seed()
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		if cerr := w.watcher.Close(); cerr != nil {
			logging.WatchError("Error closing watcher: %v", cerr)
		}
		return err
	}
	logging.Watch("Watching %s (participant=%s mode=%s)", w.dir, w.participant, w.mode)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	logging.Watch("Stopped watching %s", w.dir)
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// seed records the histories already in dir. A create event for one of
// them is an overwrite, never the second half of a rename.
func (w *Watcher) seed() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.WatchError("Failed to list %s: %v", w.dir, err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if id, ok := transcript.HistoryID(e.Name()); ok && !e.IsDir() {
			w.known[id] = true
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.dropPending()
			return

		case <-w.stopCh:
			w.dropPending()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, time.Now())

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case now := <-ticker.C:
			w.expire(now.Add(-w.debounce))
		}
	}
}

func (w *Watcher) tick() time.Duration {
	t := w.debounce / 5
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

func (w *Watcher) handleEvent(event fsnotify.Event, now time.Time) {
	id, ok := transcript.HistoryID(event.Name)
	if !ok {
		return
	}
	logging.WatchDebug("%s %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.mu.Unlock()

	switch {
	case event.Has(fsnotify.Remove):
		w.mu.Lock()
		delete(w.pending, id)
		delete(w.known, id)
		w.mu.Unlock()
		w.deleted(id)

	case event.Has(fsnotify.Rename):
		w.mu.Lock()
		w.pending[id] = now
		delete(w.known, id)
		w.mu.Unlock()

	case event.Has(fsnotify.Create):
		w.mu.Lock()
		existed := w.known[id]
		w.known[id] = true
		w.mu.Unlock()
		if existed {
			logging.WatchDebug("History %s replaced in place", id)
			return
		}
		if oldID, ok := w.takePending(id, now); ok {
			w.renamed(oldID, id)
		}
	}
}

// takePending pairs a newly created history with the most recent
// rename still inside the debounce window.
func (w *Watcher) takePending(newID string, now time.Time) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		oldID  string
		latest time.Time
	)
	for id, at := range w.pending {
		if id == newID || now.Sub(at) > w.debounce {
			continue
		}
		if oldID == "" || at.After(latest) {
			oldID, latest = id, at
		}
	}
	if oldID == "" {
		return "", false
	}
	delete(w.pending, oldID)
	return oldID, true
}

// expire turns renames older than cutoff into deletes.
func (w *Watcher) expire(cutoff time.Time) {
	w.mu.Lock()
	var gone []string
	for id, at := range w.pending {
		if at.Before(cutoff) {
			gone = append(gone, id)
			delete(w.pending, id)
		}
	}
	w.mu.Unlock()

	for _, id := range gone {
		logging.WatchDebug("Rename of %s never completed; treating as delete", id)
		w.deleted(id)
	}
}

// dropPending forgets unpaired renames on shutdown; their outcome is
// unknown, so the caches are left alone.
func (w *Watcher) dropPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.pending {
		logging.WatchDebug("Dropping pending rename of %s", id)
		delete(w.pending, id)
	}
}

func (w *Watcher) deleted(id string) {
	logging.Watch("History %s deleted", id)
	w.mu.Lock()
	w.stats.Deletes++
	w.mu.Unlock()
	w.handler.ConversationDeleted(w.participant, w.mode, id)
}

func (w *Watcher) renamed(oldID, newID string) {
	logging.Watch("History %s renamed to %s", oldID, newID)
	w.mu.Lock()
	w.stats.Renames++
	w.mu.Unlock()
	w.handler.ConversationRenamed(w.participant, w.mode, oldID, newID)
}
