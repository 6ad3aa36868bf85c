package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CES-Eats-2026/cesfront/internal/geo"
	"github.com/CES-Eats-2026/cesfront/internal/trending"
	"github.com/CES-Eats-2026/cesfront/internal/venue"
	"github.com/CES-Eats-2026/cesfront/internal/viewcount"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

// ManagerConfig holds deployment-wide session settings.
type ManagerConfig struct {
	Origin            geo.Location
	Region            geo.BoundingBox
	SnapshotWindow    time.Duration
	IdleTimeout       time.Duration
	TimeOptionMinutes int
}

// CreateRequest describes a new browser session.
type CreateRequest struct {
	// ClientID scopes persisted state to a browser profile. Defaults to the session id.
	ClientID string
	// GPS is the device fix, used only inside the configured region.
	GPS *geo.Location
}

// Manager owns the live sessions.
type Manager struct {
	backend Backend
	store   viewcount.BlobStore
	cfg     ManagerConfig
	log     *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager. store may be nil for in-memory only state.
func NewManager(b Backend, store viewcount.BlobStore, cfg ManagerConfig, log *slog.Logger) *Manager {
	if cfg.SnapshotWindow <= 0 {
		cfg.SnapshotWindow = viewcount.DefaultWindow
	}
	return &Manager{
		backend:  b,
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create registers and starts a session. A failed first fetch still returns
// the session (in the error state) together with the error.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	id := uuid.NewString()
	clientID := req.ClientID
	if clientID == "" {
		clientID = id
	}

	origin := geo.ResolveOrigin(req.GPS, m.cfg.Region, m.cfg.Origin)

	tracker := viewcount.NewTracker(m.store, clientID, m.log,
		viewcount.WithWindow(m.cfg.SnapshotWindow),
		viewcount.WithClock(m.now),
	)
	board := trending.NewBoard(m.store, clientID, m.log)

	s := NewSession(m.backend, tracker, board, Options{
		ID:                id,
		ClientID:          clientID,
		Origin:            &origin,
		TimeOptionMinutes: m.cfg.TimeOptionMinutes,
		Type:              venue.TypeAll,
	}, m.log)
	s.now = m.now
	s.lastUsed = m.now()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info("session created", "session", id, "client", clientID, "gps", req.GPS != nil, "origin", origin)

	if err := s.Start(ctx); err != nil {
		return s, fmt.Errorf("starting session: %w", err)
	}
	return s, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.touch()
	return s, nil
}

// Close stops and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.Close()
	m.log.Info("session closed", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were evicted. A zero timeout disables eviction.
func (m *Manager) Sweep() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.IdleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.log.Info("evicted idle sessions", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps idle sessions periodically until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll stops every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
