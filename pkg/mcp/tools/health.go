package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
)

type healthResult struct {
	Status  string                  `json:"status"`
	Version string                  `json:"version"`
	Engines *datasource.EngineStats `json:"engines,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and engine cache stats when engines is non-nil.
func RegisterHealthTool(s *server.MCPServer, version string, engines *datasource.EngineCache) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if engines != nil {
			stats := engines.Stats()
			result.Engines = &stats
		}
		return jsonResult(result)
	})
}
