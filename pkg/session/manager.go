package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alumnium-hq/alumnium/pkg/axtree"
	"github.com/alumnium-hq/alumnium/pkg/cache"
	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// ErrSessionNotFound is returned when a session ID has no live session.
var ErrSessionNotFound = errors.New("session not found")

// Manager is the in-memory session registry. It exclusively owns all
// sessions; reads take a shared lock, mutations an exclusive one.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      *config.Config
	store    *cache.Store
}

// NewManager builds a registry. store may be nil for in-memory caches.
func NewManager(cfg *config.Config, store *cache.Store) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		store:    store,
	}
}

// Create constructs a session under a fresh UUID and registers it.
func (m *Manager) Create(model config.Model, platform axtree.Platform, plannerEnabled bool, tools []llms.ToolDefinition) (*Session, error) {
	id := uuid.NewString()
	s, err := New(id, m.cfg.ForModel(model), platform, plannerEnabled, tools, m.store)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session, reporting whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// List returns all live session IDs in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalStats aggregates token tallies across all live sessions.
func (m *Manager) TotalStats() Stats {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var total Stats
	for _, s := range sessions {
		total.Add(s.Stats())
	}
	return total
}
