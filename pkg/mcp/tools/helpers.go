// Package tools implements the MCP tool surface of the query engine:
// ask_database, list_schemas, and get_table_info. Tools are session-scoped;
// clients obtain a session_id from the HTTP connect endpoint first.
package tools

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// ToolDeps contains the shared dependencies for all engine tools.
type ToolDeps struct {
	Sessions     *services.SessionRegistry
	Schemas      *services.SchemaService
	Orchestrator *services.QueryOrchestrator
	Logger       *zap.Logger
}

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalFloat extracts an optional numeric argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// resolveSession looks up the session named by the request's session_id.
// A missing or expired session comes back as an error result so the client
// sees an actionable message instead of a protocol failure.
func resolveSession(deps *ToolDeps, req mcp.CallToolRequest) (*models.Session, *mcp.CallToolResult) {
	raw, err := req.RequireString("session_id")
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", err.Error())
	}

	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", "session_id is not a valid UUID")
	}

	session, err := deps.Sessions.Get(id)
	if err != nil {
		return nil, NewErrorResult("session_not_found",
			"session expired or not found; call the connect endpoint to open one")
	}
	return session, nil
}
