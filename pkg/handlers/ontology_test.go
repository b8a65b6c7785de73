package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indaba-ai/indaba-engine/pkg/llm"
)

func extractionClient() *llm.MockClient {
	return &llm.MockClient{
		GenerateResponseFunc: func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
			return `{
				"concepts": [
					{
						"name": "Customer",
						"description": "A person with an account",
						"table": "main.customers",
						"synonyms": ["client", "buyer"],
						"confidence": 0.9,
						"properties": [
							{"name": "email", "column": "email", "data_type": "TEXT", "confidence": 0.85}
						]
					}
				],
				"relationships": []
			}`, nil
		},
	}
}

func TestOntologyGenerate_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	env := newHandlerEnv(t, &fakeAdapter{snapshot: fakeSnapshot()}, extractionClient(), dir)
	session := env.connectedSession(t)

	body := `{"session_id": "` + session.ID.String() + `"}`
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ontology/generate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OntologyGenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, session.Params.PoolKey(), resp.ConnectionID)
	assert.Equal(t, 1, resp.Concepts)
	assert.Zero(t, resp.Relationships)

	require.Len(t, resp.Files, 2)
	assert.True(t, strings.HasSuffix(resp.Files[0], ".yml"))
	assert.True(t, strings.HasSuffix(resp.Files[1], ".owl"))
	for _, path := range resp.Files {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Customer")
	}
}

func TestOntologyGenerate_NoExportDirOmitsFiles(t *testing.T) {
	env := newHandlerEnv(t, &fakeAdapter{snapshot: fakeSnapshot()}, extractionClient(), "")
	session := env.connectedSession(t)

	body := `{"session_id": "` + session.ID.String() + `"}`
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ontology/generate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp OntologyGenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Files)
}

func TestOntologyGenerate_UnknownSessionIs404(t *testing.T) {
	env := newHandlerEnv(t, &fakeAdapter{snapshot: fakeSnapshot()}, llm.NewMockClient(), "")

	body := `{"session_id": "6a5c0f70-1111-4222-8333-444455556666"}`
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ontology/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOntologyGenerate_InvalidSessionIs400(t *testing.T) {
	env := newHandlerEnv(t, &fakeAdapter{snapshot: fakeSnapshot()}, llm.NewMockClient(), "")

	body := `{"session_id": "not-a-uuid"}`
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ontology/generate", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
