package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/prompts"
	"github.com/indaba-ai/indaba-engine/pkg/retry"
)

// SQLGeneration is the parsed outcome of one SQL-generation round-trip.
type SQLGeneration struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
}

// GenerateSQLRequest carries everything one generation attempt needs.
// SystemPrompt overrides the default dialect prompt when the context
// builder has already assembled a budgeted one.
type GenerateSQLRequest struct {
	Question      string
	SchemaContext string
	History       []models.ConversationTurn
	Dialect       string
	SystemPrompt  string
	Temperature   float64
}

// sqlKeywords are the statement openers GenerateSQL accepts.
var sqlKeywords = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER"}

// HasSQLPrefix reports whether s starts with an accepted SQL keyword after
// trimming.
func HasSQLPrefix(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, kw := range sqlKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// Capability wraps a provider client with the two operations the rest of
// the engine calls. The binding is swapped atomically on reconfiguration;
// in-flight calls finish on the binding they started with. A circuit
// breaker sits in front of the provider.
type Capability struct {
	binding atomic.Pointer[capabilityBinding]
	logger  *zap.Logger
}

type capabilityBinding struct {
	client  Client
	breaker *CircuitBreaker
}

// NewCapability builds a capability over the given client.
func NewCapability(client Client, logger *zap.Logger) *Capability {
	c := &Capability{logger: logger.Named("llm-capability")}
	c.Rebind(client)
	return c
}

// Rebind atomically replaces the provider client. The breaker state resets
// with the binding.
func (c *Capability) Rebind(client Client) {
	c.binding.Store(&capabilityBinding{
		client:  client,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	})
}

// Client returns the currently bound provider client.
func (c *Capability) Client() Client {
	return c.binding.Load().client
}

// GenerateSQL asks the model for a SQL answer to the question and parses
// the response. Responses with no usable sql field yield *InvalidSQLError,
// which the agent counts against its retry budget.
func (c *Capability) GenerateSQL(ctx context.Context, req GenerateSQLRequest) (*SQLGeneration, error) {
	b := c.binding.Load()

	system := req.SystemPrompt
	if system == "" {
		system = prompts.SQLSystemPrompt(req.Dialect, prompts.TierStandard)
	}

	raw, err := c.complete(ctx, b, buildUserPrompt(req), system, req.Temperature)
	if err != nil {
		return nil, err
	}

	gen, err := ParseSQLGeneration(raw)
	if err != nil {
		c.logger.Warn("unusable SQL from model", zap.String("preview", truncate(raw, 120)))
		return nil, err
	}
	return gen, nil
}

// GenerateStructured asks the model for structured JSON and returns the
// parsed value (map or slice).
func (c *Capability) GenerateStructured(ctx context.Context, prompt, systemMessage string) (any, error) {
	b := c.binding.Load()

	raw, err := c.complete(ctx, b, prompt, systemMessage, 0)
	if err != nil {
		return nil, err
	}

	return ParseJSONResponse[any](raw)
}

// transientRetry bounds provider-level retries inside one completion call.
// Only transient failures (connection resets, rate limits) are retried;
// semantic failures count against the agent's budget instead.
var transientRetry = &retry.Config{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.1,
}

func (c *Capability) complete(ctx context.Context, b *capabilityBinding, prompt, system string, temperature float64) (string, error) {
	var raw string
	err := retry.DoIfRetryable(ctx, transientRetry, func() error {
		if ok, err := b.breaker.Allow(); !ok {
			// An open breaker means the provider is already known bad;
			// retrying inside this call would only hammer it.
			return NewError(ErrorTypeEndpoint, "provider unavailable", false, err)
		}

		out, err := b.client.GenerateResponse(ctx, prompt, system, temperature)
		if err != nil {
			b.breaker.RecordFailure()
			return err
		}
		b.breaker.RecordSuccess()
		raw = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// ParseSQLGeneration runs the extraction ladder over a raw model response:
// JSON with a sql field first, then bare SQL (possibly fenced).
func ParseSQLGeneration(raw string) (*SQLGeneration, error) {
	if gen, err := ParseJSONResponse[SQLGeneration](raw); err == nil && HasSQLPrefix(gen.SQL) {
		gen.SQL = strings.TrimSpace(gen.SQL)
		return &gen, nil
	}

	if stripped := StripDecorations(raw); HasSQLPrefix(stripped) {
		return &SQLGeneration{SQL: stripped}, nil
	}

	return nil, NewInvalidSQLError(raw)
}

func buildUserPrompt(req GenerateSQLRequest) string {
	var b strings.Builder

	if req.SchemaContext != "" {
		b.WriteString(req.SchemaContext)
		b.WriteString("\n\n")
	}
	for _, turn := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	if len(req.History) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", req.Question)

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
