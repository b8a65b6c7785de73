package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/config"
	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// fakeAdapter satisfies datasource.Adapter with programmable behavior.
type fakeAdapter struct {
	mu          sync.Mutex
	snapshot    *models.SchemaSnapshot
	testErr     error
	executeFunc func(ctx context.Context, query string) (*datasource.QueryResult, error)
	executed    []string
}

func (a *fakeAdapter) Dialect() datasource.Dialect { return datasource.DialectSQLite }

func (a *fakeAdapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	if a.testErr != nil {
		return nil, a.testErr
	}
	return &models.ServerInfo{
		Database:     "testdb",
		User:         "tester",
		Version:      "3.45",
		DatabaseType: "sqlite",
	}, nil
}

func (a *fakeAdapter) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	return []models.SchemaSummary{{SchemaName: "main", TableCount: len(a.snapshot.Tables)}}, nil
}

func (a *fakeAdapter) SchemaSnapshot(ctx context.Context, schema string) (*models.SchemaSnapshot, error) {
	return a.snapshot, nil
}

func (a *fakeAdapter) DatabaseSnapshot(ctx context.Context) (*models.SchemaSnapshot, error) {
	return a.snapshot, nil
}

func (a *fakeAdapter) TableInfo(ctx context.Context, schema, table string) (*models.TableDescriptor, error) {
	if t := a.snapshot.FindTable(table); t != nil {
		return t, nil
	}
	return nil, apperrors.ErrNotFound
}

func (a *fakeAdapter) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	a.mu.Lock()
	a.executed = append(a.executed, query)
	a.mu.Unlock()
	if a.executeFunc != nil {
		return a.executeFunc(ctx, query)
	}
	return &datasource.QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
}

func (a *fakeAdapter) Close() error { return nil }

var _ datasource.Adapter = (*fakeAdapter)(nil)

func fakeSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		DatabaseName: "testdb",
		DatabaseType: "sqlite",
		Tables: []models.TableDescriptor{
			{
				SchemaName: "main",
				TableName:  "customers",
				FullName:   "main.customers",
				Columns: []models.ColumnDescriptor{
					{Name: "id", DataType: "INTEGER", PrimaryKey: true},
					{Name: "email", DataType: "TEXT"},
				},
			},
		},
	}
}

// handlerEnv wires the full service stack around a fake adapter.
type handlerEnv struct {
	mux      *http.ServeMux
	sessions *services.SessionRegistry
	pools    *datasource.PoolManager
	adapter  *fakeAdapter
	client   *llm.MockClient
	cfg      *config.Config
	agent    *services.SQLAgent
	schemas  *services.SchemaService
}

func newHandlerEnv(t *testing.T, adapter *fakeAdapter, client *llm.MockClient, ontologyDir string) *handlerEnv {
	t.Helper()
	logger := zap.NewNop()

	datasource.Register(datasource.DialectSQLite,
		func(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (datasource.Adapter, error) {
			return adapter, nil
		})

	pools := datasource.NewPoolManager(datasource.PoolManagerConfig{
		IdleTTL:       time.Minute,
		SweepInterval: time.Hour,
	}, logger)
	t.Cleanup(pools.CloseAll)

	sessions := services.NewSessionRegistry(services.SessionRegistryConfig{
		IdleTTL:       time.Minute,
		SweepInterval: time.Hour,
	}, logger)
	t.Cleanup(sessions.Stop)

	cfg := &config.Config{Version: "test", Env: "test"}
	cfg.LLM.MaxTokens = 8000
	cfg.LLM.ContextStrategy = "auto"

	capability := llm.NewCapability(client, logger)
	schemas := services.NewSchemaService(pools, sessions, logger)
	builder := services.NewContextBuilder(cfg.LLM, logger)
	agent := services.NewSQLAgent(capability, builder, services.NewErrorAnalyzer(logger),
		nil, nil, pools, schemas, logger)
	orchestrator := services.NewQueryOrchestrator(agent, sessions, 5*time.Second, logger)
	ontology := services.NewOntologyService(capability, services.NewOntologyRegistry(),
		services.NewInsightGraph(logger), ontologyDir, logger)

	mux := http.NewServeMux()
	NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	NewConnectHandler(sessions, pools, schemas, nil, logger).RegisterRoutes(mux)
	NewQueryHandler(orchestrator, nil, logger).RegisterRoutes(mux)
	NewOntologyHandler(sessions, schemas, ontology, logger).RegisterRoutes(mux)

	return &handlerEnv{
		mux:      mux,
		sessions: sessions,
		pools:    pools,
		adapter:  adapter,
		client:   client,
		cfg:      cfg,
		agent:    agent,
		schemas:  schemas,
	}
}

func (e *handlerEnv) connectedSession(t *testing.T) *models.Session {
	t.Helper()
	return e.sessions.GetOrCreate(nil, models.ConnectionParams{
		DatabaseType: "sqlite",
		FilePath:     ":memory:",
	})
}
