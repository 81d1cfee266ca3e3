// Package cache persists variant stores next to the conversation history
// they belong to. Every failure at this boundary is logged and degraded
// to a safe default; nothing here is fatal to the caller.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"variantcache/internal/fsutil"
	"variantcache/internal/logging"
	"variantcache/internal/variant"
)

// Suffix is appended to the conversation id to name its cache file.
const Suffix = ".json.cache"

// ErrTargetExists is returned by Rename when the destination is taken.
var ErrTargetExists = errors.New("cache target already exists")

// PathResolver locates the history file of a conversation. The cache file
// lives in the same directory.
type PathResolver interface {
	HistoryPath(id, participant, mode string) (string, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithIndent sets the number of spaces used to indent saved files.
func WithIndent(n int) Option {
	return func(a *Adapter) {
		if n >= 0 {
			a.indent = strings.Repeat(" ", n)
		}
	}
}

// WithFileMode sets the permissions of saved files.
func WithFileMode(perm os.FileMode) Option {
	return func(a *Adapter) {
		if perm != 0 {
			a.perm = perm
		}
	}
}

// Adapter reads and writes cache files.
type Adapter struct {
	paths  PathResolver
	indent string
	perm   os.FileMode
}

// NewAdapter returns an adapter that places caches beside the histories
// located by paths.
func NewAdapter(paths PathResolver, opts ...Option) *Adapter {
	a := &Adapter{
		paths:  paths,
		indent: "    ",
		perm:   fsutil.FilePerm,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolvePath returns the cache file of a conversation and makes sure its
// directory exists.
func (a *Adapter) ResolvePath(conversationID, participantID, mode string) (string, error) {
	history, err := a.paths.HistoryPath(conversationID, participantID, mode)
	if err != nil {
		return "", fmt.Errorf("resolve history path: %w", err)
	}
	dir := filepath.Dir(history)
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		logging.CacheError("Failed to create cache dir %s: %v", dir, err)
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return filepath.Join(dir, conversationID+Suffix), nil
}

// Load reads the store at path. A missing, empty, unreadable or
// unparsable file yields an empty store.
func (a *Adapter) Load(path string) *variant.Store {
	store, err := readStore(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.CacheWarn("Falling back to empty store for %s: %v", path, err)
			logging.Audit().Log(logging.AuditEvent{
				Type:  logging.AuditCacheFallback,
				Path:  path,
				Error: err.Error(),
			})
		} else {
			logging.CacheDebug("No cache at %s", path)
		}
		return variant.New()
	}

	turns, variants := store.Stats()
	logging.CacheDebug("Loaded %s (%d turns, %d variants)", path, turns, variants)
	logging.Audit().Log(logging.AuditEvent{Type: logging.AuditCacheLoad, Path: path, Total: variants})
	return store
}

// Save writes store to path atomically and reports whether it succeeded.
func (a *Adapter) Save(store *variant.Store, path string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.CacheError("Panic while saving %s: %v", path, r)
			ok = false
		}
	}()

	if err := a.write(store, path); err != nil {
		logging.CacheError("Failed to save %s: %v", path, err)
		logging.Audit().Log(logging.AuditEvent{
			Type:  logging.AuditCacheSaveError,
			Path:  path,
			Error: err.Error(),
		})
		return false
	}
	logging.CacheDebug("Saved %s", path)
	logging.Audit().Log(logging.AuditEvent{Type: logging.AuditCacheSave, Path: path})
	return true
}

func (a *Adapter) write(store *variant.Store, path string) error {
	if store == nil {
		store = variant.New()
	}
	data, err := json.MarshalIndent(store, "", a.indent)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return fsutil.WriteAtomic(path, data, a.perm)
}

// Rename moves a cache file. A missing source is not an error; an
// existing destination is never overwritten.
func (a *Adapter) Rename(oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	if !fsutil.Exists(oldPath) {
		logging.CacheDebug("Rename: no cache at %s", oldPath)
		return nil
	}
	if fsutil.Exists(newPath) {
		return fmt.Errorf("%s: %w", newPath, ErrTargetExists)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	logging.Cache("Renamed cache %s -> %s", oldPath, newPath)
	return nil
}

// Remove deletes a cache file. A missing file is not an error.
func (a *Adapter) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache: %w", err)
	}
	logging.Cache("Removed cache %s", path)
	return nil
}

func readStore(path string) (*variant.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}
	store := variant.New()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, err
	}
	return store, nil
}
