package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePilot/internal/domain/models"
	"TradePilot/pkg/logger"
)

// ErrSessionNotFound reports an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// OrchestratorFactory builds one orchestrator for a session. The factory owns
// per-session resources such as the feed subscription.
type OrchestratorFactory func(session models.Session) (*Orchestrator, error)

// SessionRegistry keys orchestrators by session id. Sessions are first-class:
// nothing in the engine is a singleton tied to "the" session.
type SessionRegistry struct {
	factory OrchestratorFactory
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

func NewSessionRegistry(factory OrchestratorFactory, log *logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		factory:  factory,
		log:      log.Component("sessions"),
		sessions: make(map[string]*Orchestrator),
	}
}

// Start creates a new session over the symbols and runs it.
func (r *SessionRegistry) Start(ctx context.Context, symbols []string) (models.Session, error) {
	if len(symbols) == 0 {
		return models.Session{}, fmt.Errorf("start session: symbols are required")
	}

	session := models.Session{
		ID:      uuid.NewString(),
		Symbols: append([]string(nil), symbols...),
		State:   models.StateStopped,
	}
	orch, err := r.factory(session)
	if err != nil {
		return models.Session{}, fmt.Errorf("build session %s: %w", session.ID, err)
	}
	if err := orch.Start(ctx); err != nil {
		return models.Session{}, err
	}

	r.mu.Lock()
	r.sessions[session.ID] = orch
	r.mu.Unlock()

	r.log.Info("session registered",
		logger.String("session_id", session.ID),
		logger.Strings("symbols", symbols))
	return orch.Session(), nil
}

// Restart re-initializes a stopped session in place.
func (r *SessionRegistry) Restart(ctx context.Context, id string) (models.Session, error) {
	orch, ok := r.Get(id)
	if !ok {
		return models.Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err := orch.Start(ctx); err != nil {
		return models.Session{}, err
	}
	return orch.Session(), nil
}

// Stop halts a session but keeps it registered for inspection and restart.
func (r *SessionRegistry) Stop(ctx context.Context, id string) error {
	orch, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return orch.Stop(ctx)
}

func (r *SessionRegistry) Get(id string) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orch, ok := r.sessions[id]
	return orch, ok
}

// List returns every registered session, newest first.
func (r *SessionRegistry) List() []models.Session {
	r.mu.RLock()
	out := make([]models.Session, 0, len(r.sessions))
	for _, orch := range r.sessions {
		out = append(out, orch.Session())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// StopAll halts every running session; used by app shutdown.
func (r *SessionRegistry) StopAll(timeout time.Duration) {
	r.mu.RLock()
	orchs := make([]*Orchestrator, 0, len(r.sessions))
	for _, orch := range r.sessions {
		orchs = append(orchs, orch)
	}
	r.mu.RUnlock()

	for _, orch := range orchs {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := orch.Stop(ctx); err != nil {
			session := orch.Session()
			if session.State == models.StateRunning {
				r.log.Warn("session stop failed",
					logger.String("session_id", session.ID),
					logger.Error(err))
			}
		}
		cancel()
	}
}
