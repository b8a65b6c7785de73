// Package services holds the query-intelligence core: session registry,
// schema shaping, context building, error analysis, semantic hints, the SQL
// agent state machine, and the orchestrator that drives it.
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

const (
	// DefaultSessionIdleTTL is how long an untouched session survives.
	DefaultSessionIdleTTL = 60 * time.Minute
	// DefaultSessionSweepInterval is how often idle sessions are evicted.
	DefaultSessionSweepInterval = 5 * time.Minute
	// sessionSchemaCacheTTL bounds the per-session schema cache.
	sessionSchemaCacheTTL = time.Hour
)

// SessionRegistryConfig holds session lifecycle settings.
type SessionRegistryConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// SessionRegistry maps session IDs to live sessions. Sessions are touched
// on every request and evicted by the background sweeper when idle.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	idleTTL  time.Duration
	logger   *zap.Logger

	stopped  bool
	stopChan chan struct{}
}

// NewSessionRegistry builds the registry and starts the sweeper.
func NewSessionRegistry(cfg SessionRegistryConfig, logger *zap.Logger) *SessionRegistry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSessionSweepInterval
	}

	r := &SessionRegistry{
		sessions: make(map[uuid.UUID]*models.Session),
		idleTTL:  cfg.IdleTTL,
		logger:   logger.Named("session-registry"),
		stopChan: make(chan struct{}),
	}

	go r.sweepLoop(cfg.SweepInterval)
	return r
}

// GetOrCreate returns the session with the given ID when its connection
// identity matches params, else mints a fresh one. A nil sessionID always
// mints.
func (r *SessionRegistry) GetOrCreate(sessionID *uuid.UUID, params models.ConnectionParams) *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != nil {
		if s, ok := r.sessions[*sessionID]; ok && s.Params.SameIdentity(params) {
			s.LastAccessed = time.Now()
			return s
		}
	}

	s := &models.Session{
		ID:           uuid.New(),
		Params:       params,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}
	r.sessions[s.ID] = s
	r.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("dialect", params.DatabaseType))
	return s
}

// Get returns a live session or ErrSessionExpired.
func (r *SessionRegistry) Get(sessionID uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionExpired
	}
	s.LastAccessed = time.Now()
	return s, nil
}

// Remove drops one session.
func (r *SessionRegistry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// CachedSchema returns the session's schema cache and the scope it was
// fetched for, when still fresh. Scope "" means a whole-database snapshot.
func (r *SessionRegistry) CachedSchema(sessionID uuid.UUID) (*models.SchemaSnapshot, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.SchemaCache == nil {
		return nil, "", false
	}
	if time.Since(s.SchemaCachedAt) > sessionSchemaCacheTTL {
		return nil, "", false
	}
	return s.SchemaCache, s.SchemaCacheScope, true
}

// CacheSchema stores a snapshot on the session along with the schema scope
// it was fetched for.
func (r *SessionRegistry) CacheSchema(sessionID uuid.UUID, snap *models.SchemaSnapshot, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.SchemaCache = snap
		s.SchemaCacheScope = scope
		s.SchemaCachedAt = time.Now()
	}
}

// Sweep evicts sessions idle longer than the TTL and returns the count.
func (r *SessionRegistry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastAccessed) > r.idleTTL {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Info("swept idle sessions",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(r.sessions)))
	}
	return evicted
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop halts the sweeper. Idempotent.
func (r *SessionRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopChan)
}

func (r *SessionRegistry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopChan:
			return
		}
	}
}
