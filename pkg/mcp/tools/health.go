package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastRunKind string     `json:"last_run_kind,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and when ingestion last finished.
func RegisterHealthTool(s *server.MCPServer, version string, deps *Deps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if deps != nil && deps.Ingestion != nil {
			if last := deps.Ingestion.LastRun(); last != nil {
				finished := last.FinishedAt
				result.LastRunAt = &finished
				result.LastRunKind = last.Kind
			}
		}
		return jsonResult(result)
	})
}
