package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// RegisterSchemaTools adds list_schemas and get_table_info.
func RegisterSchemaTools(s *server.MCPServer, deps *ToolDeps) {
	registerListSchemasTool(s, deps)
	registerGetTableInfoTool(s, deps)
}

func registerListSchemasTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_schemas",
		mcp.WithDescription(
			"List the schemas of the connected database with their table and view counts. "+
				"Use this to discover what schema_name values ask_database accepts.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Session ID from the connect endpoint"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		session, errResult := resolveSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		summaries, err := deps.Schemas.ListSchemas(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("failed to list schemas: %w", err)
		}

		response := struct {
			Schemas []models.SchemaSummary `json:"schemas"`
		}{Schemas: summaries}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema list: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerGetTableInfoTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_table_info",
		mcp.WithDescription(
			"Describe one table: columns with types, primary keys, foreign keys, and sample rows. "+
				"Use this before asking detailed questions about a specific table.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Session ID from the connect endpoint"),
		),
		mcp.WithString(
			"table",
			mcp.Required(),
			mcp.Description("Table name, without schema qualifier"),
		),
		mcp.WithString(
			"schema_name",
			mcp.Description("Schema containing the table (default: the dialect's default schema)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		table = trimString(table)
		if table == "" {
			return NewErrorResult("invalid_parameters", "parameter 'table' cannot be empty"), nil
		}

		session, errResult := resolveSession(deps, req)
		if errResult != nil {
			return errResult, nil
		}

		descriptor, err := deps.Schemas.TableInfo(ctx, session, trimString(getOptionalString(req, "schema_name")), table)
		if err != nil {
			return NewErrorResult("table_not_found", err.Error()), nil
		}

		jsonResult, err := json.Marshal(descriptor)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal table info: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
