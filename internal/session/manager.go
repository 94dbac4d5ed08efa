// Package session owns the per-user gallery sessions: one mirrored store,
// its engine and services, and exactly one task poller per user.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/model"
	"github.com/makeasinger/motionvault/internal/service"
	"github.com/makeasinger/motionvault/internal/state"
	"github.com/makeasinger/motionvault/internal/websocket"
	"github.com/makeasinger/motionvault/internal/worker"
)

// Deps are the shared collaborators every session is built from.
type Deps struct {
	Gateway           *gateway.Gateway
	Canceller         state.JobCanceller
	Prober            media.Prober
	Hub               *websocket.Hub
	Runway            config.RunwayConfig
	PollInterval      time.Duration
	UploadConcurrency int
	TempDir           string
	Log               *logger.Logger
}

// Session is one user's live gallery.
type Session struct {
	UserID      string
	Store       *state.Store
	Engine      *state.Engine
	Uploads     *service.UploadService
	Generations *service.GenerationService
	Promotions  *service.PromoteService
	Poller      *worker.TaskPoller

	unsubscribe func()
}

// StateMessage renders the session's current collections for the socket.
func (s *Session) StateMessage() *model.WSStateMessage {
	version, c := s.Store.Snapshot()
	return stateMessage(version, c)
}

func (s *Session) close() {
	s.Poller.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Manager creates sessions on first use and tears them down on request.
type Manager struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		log:      deps.Log.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, loading its collections and starting its
// poller the first time.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("session: empty user id")
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := m.build(userID)
	if err := s.Engine.Reload(ctx); err != nil {
		return nil, fmt.Errorf("session %s: initial load: %w", userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		return existing, nil
	}
	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("session manager is shut down")
	}
	if m.deps.Hub != nil {
		hub := m.deps.Hub
		s.unsubscribe = s.Store.Subscribe(func(version uint64, c state.Collections) {
			hub.BroadcastState(userID, stateMessage(version, c))
		})
	}
	s.Poller.Start(m.ctx)
	m.sessions[userID] = s
	m.log.Info("Session opened", "user_id", userID)
	return s, nil
}

func (m *Manager) build(userID string) *Session {
	log := m.deps.Log.With("user_id", userID)
	store := state.NewStore()
	engine := state.NewEngine(store, m.deps.Gateway, userID, m.deps.Canceller, log)
	return &Session{
		UserID:      userID,
		Store:       store,
		Engine:      engine,
		Uploads:     service.NewUploadService(engine, m.deps.UploadConcurrency, log),
		Generations: service.NewGenerationService(engine, m.deps.Runway, log),
		Promotions:  service.NewPromoteService(engine, m.deps.Prober, m.deps.TempDir, log),
		Poller:      worker.NewTaskPoller(engine, m.deps.PollInterval, log),
	}
}

// Close tears down a user's session. The next Get starts a fresh one.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	m.log.Info("Session closed", "user_id", userID)
	return true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every poller and forgets every session.
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func stateMessage(version uint64, c state.Collections) *model.WSStateMessage {
	return &model.WSStateMessage{
		Type:       model.WSMessageTypeState,
		Version:    version,
		Assets:     c.Assets,
		Categories: c.Categories,
		Tasks:      c.Tasks,
	}
}
