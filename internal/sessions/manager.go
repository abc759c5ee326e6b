package sessions

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager handles session lifecycle, persistence, and lookup.
// One JSON file per session under the storage directory; the whole set is
// loaded at startup and written back atomically on every mutation.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
}

func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
	}
	if storage != "" {
		os.MkdirAll(storage, 0755)
		m.loadAll()
	}
	return m
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(key)
}

func (m *Manager) getOrCreateLocked(key string) *Session {
	if s, ok := m.sessions[key]; ok {
		return s
	}
	now := time.Now()
	s := &Session{
		Key:       key,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[key] = s
	return s
}

// SetMetadata stores a metadata value on a session, creating it if needed.
func (m *Manager) SetMetadata(key, field string, value interface{}) {
	m.mu.Lock()
	s := m.getOrCreateLocked(key)
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[field] = value
	s.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.save(key)
}

// AddMessage appends a message to a session and persists it.
func (m *Manager) AddMessage(key string, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	m.mu.Lock()
	s := m.getOrCreateLocked(key)
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.save(key)
}

// GetHistory returns a copy of the most recent messages, up to max
// (max <= 0 means all).
func (m *Manager) GetHistory(key string, max int) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil
	}

	msgs := s.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Snapshot returns a full copy of a session, or nil if it does not exist.
// Used by the consolidator to work on history after Clear has run.
func (m *Manager) Snapshot(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil
	}

	snap := *s
	snap.Messages = make([]Message, len(s.Messages))
	copy(snap.Messages, s.Messages)
	if s.Metadata != nil {
		snap.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			snap.Metadata[k] = v
		}
	}
	return &snap
}

// GetLastConsolidated returns the consolidation cursor for a session.
func (m *Manager) GetLastConsolidated(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.LastConsolidated
	}
	return 0
}

// SetLastConsolidated advances the consolidation cursor and persists.
func (m *Manager) SetLastConsolidated(key string, cursor int) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.LastConsolidated = cursor
		s.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	m.save(key)
}

// Clear resets a session's history and consolidation cursor. Metadata and
// creation time survive so isolated sessions stay isolated across /new.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.Messages = []Message{}
		s.LastConsolidated = 0
		s.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	m.save(key)
}

// Invalidate drops the cached copy of a session and reloads it from disk,
// picking up edits made by other processes. A missing or unreadable file
// just leaves the session evicted.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	if m.storage == "" {
		return
	}

	data, err := os.ReadFile(filepath.Join(m.storage, sanitizeFilename(key)+".json"))
	if err != nil {
		return
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("invalidate: corrupt session file", "key", key, "error", err)
		return
	}
	if s.Key == key {
		m.sessions[key] = &s
	}
}

// Delete removes a session from memory and disk.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	if m.storage != "" {
		path := filepath.Join(m.storage, sanitizeFilename(key)+".json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// List returns metadata for all sessions, most recently updated first.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]SessionInfo, 0, len(m.sessions))
	for key, s := range m.sessions {
		result = append(result, SessionInfo{
			Key:              key,
			MessageCount:     len(s.Messages),
			LastConsolidated: s.LastConsolidated,
			CreatedAt:        s.CreatedAt,
			UpdatedAt:        s.UpdatedAt,
			Isolated:         s.IsIsolated(),
		})
	}

	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].UpdatedAt.After(result[j-1].UpdatedAt); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result
}

// Info returns the descriptor for one session, or nil if unknown.
func (m *Manager) Info(key string) *SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	return &SessionInfo{
		Key:              key,
		MessageCount:     len(s.Messages),
		LastConsolidated: s.LastConsolidated,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		Isolated:         s.IsIsolated(),
	}
}

// save persists a session to disk atomically (temp file + rename).
// Best effort: persistence failures are logged, never fatal.
func (m *Manager) save(key string) {
	if m.storage == "" {
		return
	}

	m.mu.RLock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.RUnlock()
		return
	}
	snap := *s
	snap.Messages = make([]Message, len(s.Messages))
	copy(snap.Messages, s.Messages)
	m.mu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		slog.Warn("session marshal failed", "key", key, "error", err)
		return
	}

	filename := sanitizeFilename(key)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		slog.Warn("refusing to persist session with unsafe key", "key", key)
		return
	}
	path := filepath.Join(m.storage, filename+".json")

	tmp, err := os.CreateTemp(m.storage, "session-*.tmp")
	if err != nil {
		slog.Warn("session save failed", "key", key, "error", err)
		return
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		slog.Warn("session save failed", "key", key, "error", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		slog.Warn("session save failed", "key", key, "error", err)
		return
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		slog.Warn("session save failed", "key", key, "error", err)
	}
}

func (m *Manager) loadAll() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.storage, f.Name()))
		if err != nil {
			continue
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			slog.Warn("skipping corrupt session file", "file", f.Name(), "error", err)
			continue
		}
		if s.Key == "" {
			continue
		}
		m.sessions[s.Key] = &s
	}
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
