package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/config"
	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

type fakeAdapter struct {
	mu          sync.Mutex
	snapshot    *models.SchemaSnapshot
	executeFunc func(ctx context.Context, query string) (*datasource.QueryResult, error)
	executed    []string
}

func (a *fakeAdapter) Dialect() datasource.Dialect { return datasource.DialectSQLite }

func (a *fakeAdapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	return &models.ServerInfo{Database: "testdb", DatabaseType: "sqlite"}, nil
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

func toolSnapshot() *models.SchemaSnapshot {
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

type toolEnv struct {
	server   *server.MCPServer
	sessions *services.SessionRegistry
	session  *models.Session
	adapter  *fakeAdapter
}

func newToolEnv(t *testing.T, adapter *fakeAdapter, client *llm.MockClient) *toolEnv {
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

	cfg := &config.Config{}
	cfg.LLM.MaxTokens = 8000
	cfg.LLM.ContextStrategy = "auto"

	capability := llm.NewCapability(client, logger)
	schemas := services.NewSchemaService(pools, sessions, logger)
	builder := services.NewContextBuilder(cfg.LLM, logger)
	agent := services.NewSQLAgent(capability, builder, services.NewErrorAnalyzer(logger),
		nil, nil, pools, schemas, logger)
	orchestrator := services.NewQueryOrchestrator(agent, sessions, 5*time.Second, logger)

	session := sessions.GetOrCreate(nil, models.ConnectionParams{
		DatabaseType: "sqlite",
		FilePath:     ":memory:",
	})

	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	deps := &ToolDeps{
		Sessions:     sessions,
		Schemas:      schemas,
		Orchestrator: orchestrator,
		Logger:       logger,
	}
	RegisterAskTool(mcpServer, deps)
	RegisterSchemaTools(mcpServer, deps)

	return &toolEnv{
		server:   mcpServer,
		sessions: sessions,
		session:  session,
		adapter:  adapter,
	}
}

// callTool drives a tool through the JSON-RPC surface and returns the text
// content of the first result block plus the IsError flag.
func (e *toolEnv) callTool(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()

	argBytes, err := json.Marshal(args)
	require.NoError(t, err)

	request := fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":%q,"arguments":%s},"id":1}`,
		name, argBytes)
	raw := e.server.HandleMessage(context.Background(), []byte(request))

	resultBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Nil(t, response.Error, "unexpected protocol error")
	require.NotEmpty(t, response.Result.Content)

	return response.Result.Content[0].Text, response.Result.IsError
}
