package session

import (
	"context"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
)

// Factory builds a fresh Machine for a session ID.
type Factory func(id string) *Machine

// Manager keeps one Machine per session ID and evicts idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Machine
	factory  Factory
	idleTTL  time.Duration
	logger   *observability.Logger
}

// NewManager creates a session manager.
func NewManager(factory Factory, idleTTL time.Duration, logger *observability.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Machine),
		factory:  factory,
		idleTTL:  idleTTL,
		logger:   logger.WithOperation("sessions"),
	}
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Machine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating it if needed.
func (m *Manager) GetOrCreate(id string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := m.factory(id)
	m.sessions[id] = s
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep resets and removes sessions idle since before now-idleTTL. Sessions
// still processing are kept. It returns how many were evicted.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	var stale []*Machine
	for id, s := range m.sessions {
		if s.Status() == domain.StatusProcessing || s.LastActive().After(cutoff) {
			continue
		}
		stale = append(stale, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Reset()
	}
	if len(stale) > 0 {
		m.logger.Info().Int("evicted", len(stale)).Int("remaining", m.Len()).Msg("Evicted idle sessions")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Close resets every session so all object URLs are released.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Machine, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Reset()
	}
}
