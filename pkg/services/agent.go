package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/guard"
	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// agentPhase is one state of the generation loop.
type agentPhase string

const (
	phaseGenerate    agentPhase = "generate"
	phaseValidate    agentPhase = "validate"
	phaseExecute     agentPhase = "execute"
	phaseHandleError agentPhase = "handle_error"
	phaseFinalize    agentPhase = "finalize"
)

// stepsPerAttempt bounds the driver loop: a well-behaved attempt visits at
// most a handful of states, so (max_retries+1)*10 steps means a wedged
// transition graph, not a slow query.
const stepsPerAttempt = 10

// DefaultMaxRetries is applied when the request does not carry its own.
const DefaultMaxRetries = 3

// RunRequest is one natural-language query to resolve.
type RunRequest struct {
	Question   string
	SchemaName string
	History    []models.ConversationTurn
	MaxRetries int
}

// agentRun is the mutable state of one Run. Never shared across requests.
type agentRun struct {
	question   string
	schemaName string
	history    []models.ConversationTurn
	maxRetries int

	attempt      int
	sql          string
	explanation  string
	lastError    string
	errorHistory []string
	analysis     *models.ErrorAnalysis
	focused      []string

	result  *datasource.QueryResult
	success bool
	fatal   error
}

// recordError appends msg to the history unless it repeats the most recent
// entry.
func (r *agentRun) recordError(msg string) {
	r.lastError = msg
	if n := len(r.errorHistory); n > 0 && r.errorHistory[n-1] == msg {
		return
	}
	r.errorHistory = append(r.errorHistory, msg)
}

// SQLAgent drives one question through generate, validate, execute,
// handle_error, and finalize. Only generate and execute leave the process.
type SQLAgent struct {
	capability   *llm.Capability
	builder      *ContextBuilder
	analyzer     *ErrorAnalyzer
	hints        *HintsProvider
	historyStore *HistoryStore
	pools        *datasource.PoolManager
	schemas      *SchemaService
	logger       *zap.Logger
}

// NewSQLAgent wires the agent. hints and historyStore may be nil.
func NewSQLAgent(
	capability *llm.Capability,
	builder *ContextBuilder,
	analyzer *ErrorAnalyzer,
	hints *HintsProvider,
	historyStore *HistoryStore,
	pools *datasource.PoolManager,
	schemas *SchemaService,
	logger *zap.Logger,
) *SQLAgent {
	return &SQLAgent{
		capability:   capability,
		builder:      builder,
		analyzer:     analyzer,
		hints:        hints,
		historyStore: historyStore,
		pools:        pools,
		schemas:      schemas,
		logger:       logger.Named("sql-agent"),
	}
}

// Run resolves one question against the session's database. On retry
// exhaustion the response still carries the last SQL and the error history,
// and the returned error matches apperrors.ErrRetriesExhausted.
func (a *SQLAgent) Run(ctx context.Context, session *models.Session, req RunRequest) (*models.QueryResponse, error) {
	dialect, err := datasource.ParseDialect(session.Params.DatabaseType)
	if err != nil {
		return nil, err
	}
	if err := guard.ScreenQuestion(req.Question); err != nil {
		return nil, err
	}

	snap, err := a.schemas.Snapshot(ctx, session, req.SchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	adapter, err := a.pools.Acquire(ctx, session.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterUnavailable, err)
	}
	defer a.pools.Release(session.Params, adapter)

	run := &agentRun{
		question:   req.Question,
		schemaName: req.SchemaName,
		history:    req.History,
		maxRetries: req.MaxRetries,
	}
	if run.maxRetries <= 0 {
		run.maxRetries = DefaultMaxRetries
	}

	start := time.Now()
	maxSteps := (run.maxRetries + 1) * stepsPerAttempt

	phase := phaseGenerate
	for steps := 0; phase != phaseFinalize; steps++ {
		if steps >= maxSteps {
			a.logger.Error("agent step budget exceeded",
				zap.String("question", req.Question),
				zap.Int("steps", steps))
			run.recordError("internal: agent step budget exceeded")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch phase {
		case phaseGenerate:
			phase = a.generate(ctx, session, run, snap, dialect)
		case phaseValidate:
			phase = a.validate(run, snap)
		case phaseExecute:
			phase = a.execute(ctx, session, run, adapter, snap, dialect)
		case phaseHandleError:
			phase = a.handleError(run)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.finalize(run, time.Since(start)), runError(run)
}

func runError(run *agentRun) error {
	if run.success {
		return nil
	}
	if run.fatal != nil {
		return run.fatal
	}
	return fmt.Errorf("%w after %d attempts: %s",
		apperrors.ErrRetriesExhausted, run.attempt, run.lastError)
}

func (a *SQLAgent) generate(ctx context.Context, session *models.Session, run *agentRun, snap *models.SchemaSnapshot, dialect datasource.Dialect) agentPhase {
	var hints *models.Hints
	if a.hints != nil {
		hints = a.hints.Gather(ctx, session.Params.PoolKey(), run.question, string(dialect), run.schemaName)
	}

	pc := a.builder.Build(BuildInput{
		Question:      run.question,
		Dialect:       dialect,
		Snapshot:      snap,
		History:       run.history,
		Hints:         hints,
		Analysis:      run.analysis,
		LastError:     run.lastError,
		PreviousSQL:   run.sql,
		FocusedTables: run.focused,
		Attempt:       run.attempt,
	})

	gen, err := a.capability.GenerateSQL(ctx, llm.GenerateSQLRequest{
		Question:      run.question,
		SchemaContext: joinSections(pc.SchemaSection, pc.HintsSection, pc.HistorySection, pc.ErrorSection),
		Dialect:       string(dialect),
		SystemPrompt:  pc.SystemPrompt,
	})
	if err != nil {
		run.sql = ""
		run.recordError("generation failed: " + err.Error())
		return phaseValidate
	}

	run.sql = gen.SQL
	run.explanation = gen.Explanation
	a.logger.Debug("sql generated",
		zap.Int("attempt", run.attempt),
		zap.String("sql", run.sql))
	return phaseValidate
}

func joinSections(sections ...string) string {
	parts := sections[:0]
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (a *SQLAgent) validate(run *agentRun, snap *models.SchemaSnapshot) agentPhase {
	if run.sql == "" {
		return phaseHandleError
	}

	if err := guard.ValidateGenerated(run.sql, run.question); err != nil {
		run.recordError("validation failed: " + err.Error())
		if errors.Is(err, apperrors.ErrDangerousOperation) {
			// Destructive statements end the run; regenerating would hand
			// the model another chance to produce a mutation.
			a.logger.Warn("dangerous statement rejected",
				zap.String("sql", run.sql))
			run.fatal = err
			return phaseFinalize
		}
		return phaseHandleError
	}

	if run.schemaName != "" {
		bare := make([]string, 0, len(snap.Tables))
		for _, t := range snap.Tables {
			bare = append(bare, t.TableName)
		}
		if unqualified := guard.UnqualifiedTables(run.sql, run.schemaName, bare); len(unqualified) > 0 {
			run.recordError(fmt.Sprintf(
				"tables %s must be prefixed with schema %q",
				strings.Join(unqualified, ", "), run.schemaName))
			return phaseHandleError
		}
	}

	return phaseExecute
}

func (a *SQLAgent) execute(ctx context.Context, session *models.Session, run *agentRun, adapter datasource.Adapter, snap *models.SchemaSnapshot, dialect datasource.Dialect) agentPhase {
	result, err := adapter.Execute(ctx, run.sql)
	if err != nil {
		if ctx.Err() != nil {
			// deadline hit mid-execution; Run surfaces the context error
			return phaseFinalize
		}
		run.recordError(err.Error())
		run.analysis = a.analyzer.Analyze(err.Error(), run.sql, snap, dialect)
		run.focused = focusedTablesFrom(run.analysis, snap)
		return phaseHandleError
	}

	run.result = result
	run.success = true
	a.offerToHistory(run, string(dialect))
	return phaseFinalize
}

// offerToHistory records the solved pair for future retrieval. Best-effort
// and off the request path.
func (a *SQLAgent) offerToHistory(run *agentRun, dialect string) {
	if a.historyStore == nil {
		return
	}
	pair := models.HistoricalQuery{
		Question:   run.question,
		SQL:        run.sql,
		Dialect:    dialect,
		SchemaName: run.schemaName,
		CreatedAt:  time.Now(),
	}
	go func() {
		offerCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.historyStore.Offer(offerCtx, pair)
	}()
}

func (a *SQLAgent) handleError(run *agentRun) agentPhase {
	run.attempt++
	if run.attempt >= run.maxRetries {
		a.logger.Warn("retries exhausted",
			zap.String("question", run.question),
			zap.Int("attempts", run.attempt),
			zap.Strings("errors", run.errorHistory))
		return phaseFinalize
	}
	return phaseGenerate
}

// focusedTablesFrom narrows the next prompt's schema section to the tables
// the analysis implicates.
func focusedTablesFrom(analysis *models.ErrorAnalysis, snap *models.SchemaSnapshot) []string {
	if analysis == nil {
		return nil
	}

	var focused []string
	add := func(name string) {
		if t := snap.FindTable(name); t != nil {
			focused = appendUnique(focused, t.FullName)
		}
	}

	for _, s := range analysis.Suggestions {
		if i := strings.LastIndex(s, "."); i > 0 {
			add(s[:i])
		} else {
			add(s)
		}
	}
	for _, id := range analysis.OffendingIdentifiers {
		if i := strings.Index(id, "."); i > 0 {
			add(id[:i])
		}
	}
	return focused
}

func (a *SQLAgent) finalize(run *agentRun, elapsed time.Duration) *models.QueryResponse {
	resp := &models.QueryResponse{
		Question:          run.question,
		SQLQuery:          run.sql,
		Results:           []map[string]any{},
		Columns:           []string{},
		ExecutionTime:     elapsed.Seconds(),
		Explanation:       run.explanation,
		RetryCount:        run.attempt,
		ErrorsEncountered: run.errorHistory,
		Success:           run.success,
	}
	if run.errorHistory == nil {
		resp.ErrorsEncountered = []string{}
	}
	if run.result != nil {
		resp.Results = run.result.Rows
		resp.Columns = run.result.Columns
		resp.RowCount = run.result.RowCount
	}
	return resp
}
