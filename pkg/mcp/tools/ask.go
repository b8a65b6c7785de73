package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/services"
)

// RegisterAskTool adds the ask_database tool, which turns a natural-language
// question into SQL, executes it against the session's database, and returns
// the rows.
func RegisterAskTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"ask_database",
		mcp.WithDescription(
			"Ask a natural-language question about the connected database. "+
				"The engine generates SQL for the session's dialect, validates it, executes it read-only, "+
				"and returns the rows together with the SQL it ran. "+
				"Failed attempts are retried with error feedback before giving up.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer, e.g. 'how many orders shipped last month?'"),
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Session ID from the connect endpoint"),
		),
		mcp.WithString(
			"schema_name",
			mcp.Description("Restrict generation to one schema (default: whole database)"),
		),
		mcp.WithNumber(
			"max_retries",
			mcp.Description("Override the retry budget for this question"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		question = trimString(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		session, errResult := resolveSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		run := services.RunRequest{
			Question:   question,
			SchemaName: trimString(getOptionalString(req, "schema_name")),
		}
		if retries, ok := getOptionalFloat(req, "max_retries"); ok {
			run.MaxRetries = int(retries)
		}

		resp, err := deps.Orchestrator.Execute(ctx, session.ID, run)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRetriesExhausted):
				details := map[string]any{}
				if resp != nil {
					details["retry_count"] = resp.RetryCount
					details["errors"] = resp.ErrorsEncountered
					details["sql_query"] = resp.SQLQuery
				}
				return NewErrorResultWithDetails("retries_exhausted", err.Error(), details), nil
			case errors.Is(err, apperrors.ErrQueryTimeout):
				return NewErrorResult("query_timeout", "query timed out"), nil
			case errors.Is(err, apperrors.ErrValidationFailed),
				errors.Is(err, apperrors.ErrDangerousOperation):
				return NewErrorResult("validation_failed", err.Error()), nil
			}
			deps.Logger.Error("ask_database failed",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("query failed: %w", err)
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
