package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionFactory builds a session for a key. The manager calls it at most
// once per key.
type SessionFactory func(key string) (*Session, error)

// Manager addresses independent sessions by key. There is no shared mutable
// state between sessions; the manager only guards the map itself.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  SessionFactory
}

// NewManager creates a manager around the given factory.
func NewManager(factory SessionFactory) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Get returns the session for key, or nil.
func (m *Manager) Get(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

// GetOrCreate returns the session for key, creating it on first use.
func (m *Manager) GetOrCreate(key string) (*Session, error) {
	m.mu.RLock()
	s := m.sessions[key]
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[key]; s != nil {
		return s, nil
	}
	s, err := m.factory(key)
	if err != nil {
		return nil, err
	}
	m.sessions[key] = s
	zap.L().Info("session created", zap.String("session", key))
	return s, nil
}

// Keys returns the known session keys, sorted.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SweepExpired expires overdue pending predictions across all sessions and
// returns how many expired. It backs the liveness guarantee for sessions
// whose upstream went quiet.
func (m *Manager) SweepExpired(ctx context.Context) int {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	expired := 0
	for _, s := range sessions {
		if p := s.ExpirePending(ctx); p != nil {
			expired++
		}
	}
	return expired
}

// RunSweeper expires stale predictions on the given interval until the
// context is canceled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(ctx); n > 0 {
				zap.L().Info("expired stale predictions", zap.Int("count", n))
			}
		}
	}
}
