package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"variantcache/internal/fsutil"
	"variantcache/internal/logging"

	"github.com/google/uuid"
)

// ModeInstruct keeps histories in one shared directory regardless of
// participant. Every other mode nests them per participant.
const (
	ModeChat     = "chat"
	ModeInstruct = "instruct"
)

// HistoryExt is the extension of history files.
const HistoryExt = ".json"

var (
	ErrNotFound  = errors.New("conversation not found")
	ErrExists    = errors.New("conversation already exists")
	ErrInvalidID = errors.New("invalid identifier")
	ErrSamePath  = errors.New("new id is identical to the old one")
)

// LifecycleObserver is told about conversations that were renamed or
// deleted through the store.
type LifecycleObserver interface {
	ConversationRenamed(participant, mode, oldID, newID string)
	ConversationDeleted(participant, mode, id string)
}

// FileStore keeps one JSON history file per conversation under root.
type FileStore struct {
	root string

	mu        sync.RWMutex
	observers []LifecycleObserver
}

// NewFileStore creates a store rooted at root. Nothing is created on disk
// until a history is saved.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the directory the store writes under.
func (s *FileStore) Root() string { return s.root }

// Subscribe registers o for rename and delete events.
func (s *FileStore) Subscribe(o LifecycleObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// NewConversationID returns a fresh conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// HistoryPath returns the history file of a conversation.
func (s *FileStore) HistoryPath(id, participant, mode string) (string, error) {
	if err := validateName(id); err != nil {
		return "", fmt.Errorf("conversation id: %w", err)
	}
	dir, err := s.Dir(participant, mode)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id+HistoryExt), nil
}

// Dir returns the directory holding the histories of (participant, mode).
func (s *FileStore) Dir(participant, mode string) (string, error) {
	if mode == "" {
		mode = ModeChat
	}
	if err := validateName(mode); err != nil {
		return "", fmt.Errorf("mode: %w", err)
	}
	if mode == ModeInstruct {
		return filepath.Join(s.root, mode), nil
	}
	if err := validateName(participant); err != nil {
		return "", fmt.Errorf("participant: %w", err)
	}
	return filepath.Join(s.root, mode, participant), nil
}

// Load reads a conversation's history.
func (s *FileStore) Load(id, participant, mode string) (*History, error) {
	path, err := s.HistoryPath(id, participant, mode)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	h := NewHistory()
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	if len(h.Internal) != len(h.Visible) {
		logging.TranscriptWarn("History %s has %d internal and %d visible turns; padding the shorter", path, len(h.Internal), len(h.Visible))
	}
	h.normalize()
	return h, nil
}

// Save writes a conversation's history.
func (s *FileStore) Save(h *History, id, participant, mode string) error {
	path, err := s.HistoryPath(id, participant, mode)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := fsutil.WriteAtomic(path, data, fsutil.FilePerm); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Create starts a new, empty conversation and returns its id.
func (s *FileStore) Create(participant, mode string) (string, *History, error) {
	id := NewConversationID()
	h := NewHistory()
	if err := s.Save(h, id, participant, mode); err != nil {
		return "", nil, err
	}
	logging.Transcript("Created conversation %s (participant=%s mode=%s)", id, participant, mode)
	return id, h, nil
}

// Rename moves a conversation to newID and notifies observers. Ids cannot
// contain separators, so the file never leaves its directory; the target
// must not already exist.
func (s *FileStore) Rename(oldID, newID, participant, mode string) error {
	oldPath, err := s.HistoryPath(oldID, participant, mode)
	if err != nil {
		return err
	}
	newPath, err := s.HistoryPath(newID, participant, mode)
	if err != nil {
		return err
	}
	if oldPath == newPath {
		return ErrSamePath
	}
	if fsutil.Exists(newPath) {
		return fmt.Errorf("%s: %w", newID, ErrExists)
	}
	if !fsutil.Exists(oldPath) {
		return fmt.Errorf("%s: %w", oldID, ErrNotFound)
	}

	logging.Transcript("Renaming %q to %q", oldPath, newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename history: %w", err)
	}

	for _, o := range s.snapshotObservers() {
		o.ConversationRenamed(participant, mode, oldID, newID)
	}
	return nil
}

// Delete removes a conversation and notifies observers.
func (s *FileStore) Delete(id, participant, mode string) error {
	path, err := s.HistoryPath(id, participant, mode)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete history: %w", err)
	}
	logging.Transcript("Deleted conversation %s", path)

	for _, o := range s.snapshotObservers() {
		o.ConversationDeleted(participant, mode, id)
	}
	return nil
}

// List returns the conversation ids of (participant, mode), sorted.
func (s *FileStore) List(participant, mode string) ([]string, error) {
	dir, err := s.Dir(participant, mode)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if id, ok := HistoryID(e.Name()); ok && !e.IsDir() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// HistoryID extracts the conversation id from a history file name.
// Cache files and in-flight temp files are rejected.
func HistoryID(name string) (string, bool) {
	base := filepath.Base(name)
	if fsutil.IsTemp(base) || !strings.HasSuffix(base, HistoryExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, HistoryExt)
	if validateName(id) != nil {
		return "", false
	}
	return id, true
}

func (s *FileStore) snapshotObservers() []LifecycleObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LifecycleObserver(nil), s.observers...)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidID)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%q: %w", name, ErrInvalidID)
	}
	return nil
}
