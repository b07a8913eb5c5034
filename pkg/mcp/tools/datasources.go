package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// RegisterDataTools registers list_datasources, test_datasource, get_schema and run_query.
func RegisterDataTools(s *server.MCPServer, deps *Deps) {
	registerListDatasourcesTool(s, deps)
	registerTestDatasourceTool(s, deps)
	registerGetSchemaTool(s, deps)
	registerRunQueryTool(s, deps)
}

type datasourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type listDatasourcesResponse struct {
	Datasources []datasourceInfo `json:"datasources"`
	Count       int              `json:"count"`
}

func registerListDatasourcesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_datasources",
		mcp.WithDescription("List the data sources of the current tenant. Use the id or name with the other tools."),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, tenantCtx, cleanup, err := acquireTenant(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		sources, err := deps.Datasources.List(tenantCtx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to list datasources: %w", err)
		}
		resp := listDatasourcesResponse{Datasources: make([]datasourceInfo, len(sources)), Count: len(sources)}
		for i, src := range sources {
			resp.Datasources[i] = datasourceInfo{ID: src.ID.String(), Name: src.Name, Type: string(src.Kind)}
		}
		return jsonResult(resp)
	})
}

func registerTestDatasourceTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"test_datasource",
		mcp.WithDescription("Check that a data source is reachable with its stored credentials."),
		mcp.WithString("datasource", mcp.Required(), mcp.Description("Data source id or name")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, tenantCtx, cleanup, err := acquireTenant(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		src, result, err := resolveSource(tenantCtx, deps, tenantID, req)
		if result != nil || err != nil {
			return result, err
		}
		if err := deps.Datasources.Test(tenantCtx, tenantID, src.ID); err != nil {
			if result, ok := ServiceErrorResult(err); ok {
				return result, nil
			}
			return jsonResult(map[string]any{"success": false, "message": err.Error()})
		}
		return jsonResult(map[string]any{"success": true, "message": "Connection successful"})
	})
}

func registerGetSchemaTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(`Describe the schemas, tables and columns of a data source.
Pass tables to describe only those tables of a relational source.`),
		mcp.WithString("datasource", mcp.Required(), mcp.Description("Data source id or name")),
		mcp.WithArray("tables",
			mcp.Description("Optional table names, schema-qualified where needed"),
			mcp.Items(map[string]any{"type": "string"})),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, tenantCtx, cleanup, err := acquireTenant(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		src, result, err := resolveSource(tenantCtx, deps, tenantID, req)
		if result != nil || err != nil {
			return result, err
		}

		if tables := req.GetStringSlice("tables", nil); len(tables) > 0 {
			described, err := deps.Introspection.DescribeTables(tenantCtx, tenantID, src.ID, tables)
			if err != nil {
				return serviceFailure(deps, "describe tables", src, err)
			}
			return jsonResult(map[string]any{"tables": described})
		}

		catalog, err := deps.Introspection.Introspect(tenantCtx, src)
		if err != nil {
			return serviceFailure(deps, "introspect", src, err)
		}
		return jsonResult(catalog)
	})
}

func registerRunQueryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"run_query",
		mcp.WithDescription(`Run a read-only SQL query against a data source.
Bind values with :name placeholders and the params object. Results are capped by the
data source's row limit. Workspace sources expose files.<alias> and db.<table>.`),
		mcp.WithString("datasource", mcp.Required(), mcp.Description("Data source id or name")),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SQL statement")),
		mcp.WithObject("params", mcp.Description("Named parameter values")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil || strings.TrimSpace(sqlText) == "" {
			return NewErrorResult("invalid_parameters", "sql is required"), nil
		}
		limit := req.GetInt("limit", deps.DefaultRowLimit)
		if limit < 0 {
			return NewErrorResultWithDetails("invalid_parameters", "limit must not be negative",
				map[string]any{"parameter": "limit", "actual_value": limit}), nil
		}
		var params map[string]any
		if raw, ok := req.GetArguments()["params"]; ok && raw != nil {
			if params, ok = raw.(map[string]any); !ok {
				return NewErrorResult("invalid_parameters", "params must be an object"), nil
			}
		}

		tenantID, tenantCtx, cleanup, err := acquireTenant(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		src, result, err := resolveSource(tenantCtx, deps, tenantID, req)
		if result != nil || err != nil {
			return result, err
		}
		out, err := deps.Queries.Execute(tenantCtx, src, sqlText, params, limit)
		if err != nil {
			return serviceFailure(deps, "run query", src, err)
		}
		return jsonResult(out)
	})
}

// resolveSource loads the "datasource" argument by id, falling back to name.
func resolveSource(ctx context.Context, deps *Deps, tenantID uuid.UUID, req mcp.CallToolRequest) (*models.DataSource, *mcp.CallToolResult, error) {
	ref, err := req.RequireString("datasource")
	ref = strings.TrimSpace(ref)
	if err != nil || ref == "" {
		return nil, NewErrorResult("invalid_parameters", "datasource is required"), nil
	}

	var src *models.DataSource
	if id, perr := uuid.Parse(ref); perr == nil {
		src, err = deps.Datasources.Get(ctx, tenantID, id)
	} else {
		src, err = deps.Datasources.GetByName(ctx, tenantID, ref)
	}
	if err != nil {
		if result, ok := ServiceErrorResult(err); ok {
			return nil, result, nil
		}
		return nil, nil, fmt.Errorf("failed to load datasource: %w", err)
	}
	return src, nil, nil
}

func serviceFailure(deps *Deps, op string, src *models.DataSource, err error) (*mcp.CallToolResult, error) {
	if result, ok := ServiceErrorResult(err); ok {
		return result, nil
	}
	if deps.Logger != nil {
		deps.Logger.Error("MCP tool failed",
			zap.String("op", op),
			zap.String("datasource_id", src.ID.String()),
			zap.Error(err))
	}
	return nil, fmt.Errorf("failed to %s: %w", op, err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
