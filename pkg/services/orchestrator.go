package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// DefaultQueryTimeout bounds one end-to-end query, covering every LLM and
// database round-trip of the retry loop.
const DefaultQueryTimeout = 300 * time.Second

// QueryOrchestrator fronts the agent: it resolves the session, enforces the
// per-query deadline, and runs the agent in a worker goroutine so a
// blocking adapter call never wedges the caller.
type QueryOrchestrator struct {
	agent          *SQLAgent
	sessions       *SessionRegistry
	timeout        time.Duration
	defaultRetries int
	logger         *zap.Logger
}

// OrchestratorOption tunes the orchestrator.
type OrchestratorOption func(*QueryOrchestrator)

// WithDefaultMaxRetries sets the retry budget applied to requests that do
// not carry their own.
func WithDefaultMaxRetries(n int) OrchestratorOption {
	return func(o *QueryOrchestrator) {
		if n > 0 {
			o.defaultRetries = n
		}
	}
}

// NewQueryOrchestrator wires the orchestrator. A non-positive timeout gets
// the default.
func NewQueryOrchestrator(agent *SQLAgent, sessions *SessionRegistry, timeout time.Duration, logger *zap.Logger, opts ...OrchestratorOption) *QueryOrchestrator {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	o := &QueryOrchestrator{
		agent:          agent,
		sessions:       sessions,
		timeout:        timeout,
		defaultRetries: DefaultMaxRetries,
		logger:         logger.Named("query-orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type runOutcome struct {
	response *models.QueryResponse
	err      error
}

// Execute resolves the session and drives one question to completion.
// Deadline expiry yields apperrors.ErrQueryTimeout; the worker keeps
// draining in the background so the connection handle is still released.
func (o *QueryOrchestrator) Execute(ctx context.Context, sessionID uuid.UUID, req RunRequest) (*models.QueryResponse, error) {
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if req.MaxRetries <= 0 {
		req.MaxRetries = o.defaultRetries
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)

	done := make(chan runOutcome, 1)
	go func() {
		defer cancel()
		resp, runErr := o.agent.Run(runCtx, session, req)
		done <- runOutcome{response: resp, err: runErr}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil && isDeadline(outcome.err) {
			return nil, o.timeoutError(req)
		}
		return outcome.response, outcome.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, o.timeoutError(req)
	}
}

func (o *QueryOrchestrator) timeoutError(req RunRequest) error {
	o.logger.Warn("query timed out",
		zap.String("question", req.Question),
		zap.Duration("timeout", o.timeout))
	return apperrors.ErrQueryTimeout
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
