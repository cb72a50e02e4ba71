package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterStatsTool adds ingestion_stats, which reports extraction quality,
// cost, review backlog and the most frequent failures.
func RegisterStatsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"ingestion_stats",
		mcp.WithDescription(
			"Report quotation ingestion telemetry: parses per extraction method with mean confidence, "+
				"language model cost, failure count, pending reviews and the most common failure patterns.",
		),
		mcp.WithNumber(
			"days",
			mcp.Description("Optional - reporting window in days (default 7)"),
		),
		mcp.WithNumber(
			"failure_limit",
			mcp.Description("Optional - number of failure patterns to include (default 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var since time.Time
		if days, ok := getOptionalFloat(req, "days"); ok {
			if days <= 0 {
				return NewErrorResult("invalid_parameters", "days must be positive"), nil
			}
			since = time.Now().Add(-time.Duration(days * float64(24*time.Hour)))
		}
		limit := 10
		if v, ok := getOptionalFloat(req, "failure_limit"); ok && v > 0 {
			limit = int(v)
		}

		stats, err := deps.Telemetry.Stats(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("failed to load ingestion stats: %w", err)
		}
		patterns, err := deps.Telemetry.FailurePatterns(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load failure patterns: %w", err)
		}

		result := map[string]any{
			"stats":            stats,
			"failure_patterns": patterns,
		}
		if deps.Ingestion != nil {
			if last := deps.Ingestion.LastRun(); last != nil {
				result["last_run"] = map[string]any{
					"kind":        last.Kind,
					"finished_at": last.FinishedAt,
					"considered":  last.Considered,
					"committed":   last.Committed,
					"queued":      last.Queued,
					"failed":      last.Failed,
					"entries":     last.Entries,
				}
			}
		}
		return jsonResult(result)
	})
}
