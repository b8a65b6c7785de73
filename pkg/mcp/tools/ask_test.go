package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

func sqlClient(sql string) *llm.MockClient {
	return &llm.MockClient{
		GenerateResponseFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return fmt.Sprintf(`{"sql": %q, "explanation": "generated"}`, sql), nil
		},
	}
}

func TestAskDatabase_ReturnsRows(t *testing.T) {
	adapter := &fakeAdapter{
		snapshot: toolSnapshot(),
		executeFunc: func(ctx context.Context, query string) (*datasource.QueryResult, error) {
			return &datasource.QueryResult{
				Columns:  []string{"count"},
				Rows:     []map[string]any{{"count": int64(7)}},
				RowCount: 1,
			}, nil
		},
	}
	env := newToolEnv(t, adapter, sqlClient("SELECT COUNT(*) AS count FROM customers"))

	text, isError := env.callTool(t, "ask_database", map[string]any{
		"question":   "how many customers",
		"session_id": env.session.ID.String(),
	})

	require.False(t, isError, text)

	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RowCount)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM customers", resp.SQLQuery)
}

func TestAskDatabase_ExhaustionSurfacesDetails(t *testing.T) {
	adapter := &fakeAdapter{
		snapshot: toolSnapshot(),
		executeFunc: func(ctx context.Context, query string) (*datasource.QueryResult, error) {
			return nil, &datasource.ExecutionError{
				Dialect: datasource.DialectSQLite,
				Native:  `relation "ghosts" does not exist`,
			}
		},
	}
	env := newToolEnv(t, adapter, sqlClient("SELECT * FROM ghosts"))

	text, isError := env.callTool(t, "ask_database", map[string]any{
		"question":    "list ghosts",
		"session_id":  env.session.ID.String(),
		"max_retries": 2,
	})

	require.True(t, isError)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "retries_exhausted", resp.Code)

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), details["retry_count"])
	assert.Equal(t, "SELECT * FROM ghosts", details["sql_query"])
	assert.NotEmpty(t, details["errors"])
}

func TestAskDatabase_UnknownSession(t *testing.T) {
	env := newToolEnv(t, &fakeAdapter{snapshot: toolSnapshot()}, llm.NewMockClient())

	text, isError := env.callTool(t, "ask_database", map[string]any{
		"question":   "anything",
		"session_id": "6a5c0f70-1111-4222-8333-444455556666",
	})

	require.True(t, isError)
	assert.Contains(t, text, "session_not_found")
}

func TestAskDatabase_EmptyQuestion(t *testing.T) {
	env := newToolEnv(t, &fakeAdapter{snapshot: toolSnapshot()}, llm.NewMockClient())

	text, isError := env.callTool(t, "ask_database", map[string]any{
		"question":   "   ",
		"session_id": env.session.ID.String(),
	})

	require.True(t, isError)
	assert.Contains(t, text, "invalid_parameters")
}
