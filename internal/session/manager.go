package session

import (
	"sync"

	"variantcache/internal/logging"
	"variantcache/internal/variant"
)

// Persistence is the storage the manager loads and saves stores through.
type Persistence interface {
	ResolvePath(conversationID, participantID, mode string) (string, error)
	Load(path string) *variant.Store
	Save(store *variant.Store, path string) bool
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

// Manager owns the single active variant store. All access goes through
// its lock, so a switch, the mutation that follows it and the save that
// ends it are never interleaved with another caller.
type Manager struct {
	mu      sync.Mutex
	persist Persistence

	active Key
	store  *variant.Store
	path   string
}

// NewManager returns a manager with no active context.
func NewManager(persist Persistence) *Manager {
	return &Manager{persist: persist, store: variant.New()}
}

// Sync makes key the active context. It returns false when key is
// already active. Otherwise the previous store is saved and the new one
// loaded; a store that cannot be loaded starts empty.
func (m *Manager) Sync(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncLocked(key)
}

// Do syncs to key and runs fn on the active store under the lock. When fn
// returns true the store is saved before the lock is released. Do
// reports whether that save succeeded, or true when none was requested.
func (m *Manager) Do(key Key, fn func(*variant.Store) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncLocked(key)
	if !fn(m.store) {
		return true
	}
	return m.saveLocked()
}

// Flush saves the active store, if any.
func (m *Manager) Flush() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active.IsZero() {
		return true
	}
	logging.SessionDebug("Flushing %s", m.active)
	return m.saveLocked()
}

// Active returns the active key.
func (m *Manager) Active() (Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, !m.active.IsZero()
}

// Snapshot returns a copy of the active store.
func (m *Manager) Snapshot() *variant.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Clone()
}

// ConversationRenamed moves the cache of a renamed conversation and
// follows it when it is the active one. The active context is matched
// by cache path, so keys that alias the same file are treated alike.
func (m *Manager) ConversationRenamed(participant, mode, oldID, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldPath, err := m.persist.ResolvePath(oldID, participant, mode)
	if err != nil {
		logging.SessionWarn("Rename %s: cannot resolve old cache path: %v", oldID, err)
		return
	}
	newPath, err := m.persist.ResolvePath(newID, participant, mode)
	if err != nil {
		logging.SessionWarn("Rename %s: cannot resolve new cache path: %v", newID, err)
		return
	}

	wasActive := m.isActiveLocked(oldPath)
	if wasActive {
		m.saveLocked()
	}

	audit := logging.AuditEvent{
		Type:         logging.AuditRename,
		Participant:  participant,
		Conversation: newID,
		Mode:         mode,
		Path:         newPath,
	}
	if err := m.persist.Rename(oldPath, newPath); err != nil {
		logging.SessionWarn("Rename %s -> %s failed: %v", oldID, newID, err)
		audit.Error = err.Error()
		logging.Audit().Log(audit)
		return
	}
	logging.Audit().Log(audit)

	if wasActive {
		m.active.Conversation = newID
		m.path = newPath
		logging.Session("Active context follows rename to %s", m.active)
	}
}

// ConversationDeleted removes the cache of a deleted conversation. When
// it was active the context is cleared without saving.
func (m *Manager) ConversationDeleted(participant, mode, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.persist.ResolvePath(id, participant, mode)
	if err != nil {
		logging.SessionWarn("Delete %s: cannot resolve cache path: %v", id, err)
		return
	}

	if m.isActiveLocked(path) {
		logging.Session("Active context %s deleted", m.active)
		m.active = Key{}
		m.store = variant.New()
		m.path = ""
	}
	audit := logging.AuditEvent{
		Type:         logging.AuditDelete,
		Participant:  participant,
		Conversation: id,
		Mode:         mode,
		Path:         path,
	}
	if err := m.persist.Remove(path); err != nil {
		logging.SessionWarn("Delete %s failed: %v", id, err)
		audit.Error = err.Error()
	}
	logging.Audit().Log(audit)
}

func (m *Manager) syncLocked(key Key) bool {
	if key == m.active {
		return false
	}

	if !m.active.IsZero() {
		logging.SessionDebug("Persisting %s before switch", m.active)
		m.saveLocked()
	}

	prev := m.active
	m.active = key
	m.store = variant.New()
	m.path = ""

	if !key.IsZero() {
		path, err := m.persist.ResolvePath(key.Conversation, key.Participant, key.Mode)
		if err != nil {
			logging.SessionWarn("Cannot resolve cache for %s, starting empty: %v", key, err)
		} else {
			m.path = path
			m.store = m.persist.Load(path)
		}
	}

	logging.Session("Context switch %s -> %s", prev, key)
	logging.Audit().Log(logging.AuditEvent{
		Type:         logging.AuditContextSwitch,
		Participant:  key.Participant,
		Conversation: key.Conversation,
		Mode:         key.Mode,
		Path:         m.path,
	})
	return true
}

func (m *Manager) isActiveLocked(path string) bool {
	return !m.active.IsZero() && m.path != "" && m.path == path
}

func (m *Manager) saveLocked() bool {
	if m.path == "" {
		return false
	}
	return m.persist.Save(m.store, m.path)
}
