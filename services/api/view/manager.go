package view

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
)

// PreferencesFunc returns the theme store of a client. clientID may be empty.
type PreferencesFunc func(clientID string) layers.PreferenceStore

// Manager keeps the live sessions.
type Manager struct {
	deps  Deps
	prefs PreferencesFunc
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a manager. Sessions unused for ttl are evicted by Sweep.
func NewManager(deps Deps, prefs PreferencesFunc, ttl time.Duration) *Manager {
	if prefs == nil {
		shared := layers.NewMemoryPreferenceSet()
		prefs = shared.For
	}
	return &Manager{
		deps:     deps,
		prefs:    prefs,
		ttl:      ttl,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create starts a session and requests its station feed. It returns before
// the feed has loaded; use Settle to wait.
func (m *Manager) Create(ctx context.Context, clientID string) (*Session, error) {
	s := newSession(uuid.New(), m.deps, m.prefs(clientID))
	if err := s.Do(ctx, s.start); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.reportActive(n)
	log.Printf("session %s created", s.id)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.reportActive(n)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the ttl and returns how many it
// closed.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		log.Printf("session %s evicted after idling", s.id)
	}
	if len(expired) > 0 {
		m.reportActive(n)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.reportActive(0)
}

func (m *Manager) reportActive(n int) {
	if m.deps.Observer != nil {
		m.deps.Observer.SessionsActive(n)
	}
}
