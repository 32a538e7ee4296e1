package quiz

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionTTL is how long a session is kept after it is added.
const DefaultSessionTTL = 24 * time.Hour

type managedSession struct {
	session *Session
	added   time.Time
}

// Manager keeps in-flight sessions in memory, keyed by session id.
// Sessions are never persisted; discarding one drops its unapplied outcomes.
// Sessions older than the TTL are evicted whenever a new one is added.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]managedSession
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns an empty Manager. A ttl of zero or less uses
// DefaultSessionTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		sessions: make(map[string]managedSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Add registers s under its id and evicts stale sessions.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, ms := range m.sessions {
		if now.Sub(ms.added) > m.ttl {
			slog.Info("Evicting stale quiz session", "session", id, "state", ms.session.State())
			delete(m.sessions, id)
		}
	}
	m.sessions[s.ID] = managedSession{session: s, added: now}
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	return ms.session, ok
}

// Discard forgets a session.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
