package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// reviewSummary is the compact listing shape; the full payload is only
// returned for a single item.
type reviewSummary struct {
	ID         string                  `json:"id"`
	MessageID  string                  `json:"message_id"`
	Subject    string                  `json:"subject,omitempty"`
	Status     models.ReviewStatus     `json:"status"`
	Method     models.ExtractionMethod `json:"method"`
	Confidence float64                 `json:"confidence"`
	Client     string                  `json:"client,omitempty"`
	Items      []reviewItemSummary     `json:"items"`
}

type reviewItemSummary struct {
	Index      int     `json:"index"`
	Material   string  `json:"material"`
	Rate       string  `json:"rate"`
	Unit       string  `json:"unit"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
	// Suggested is the resolver's best candidate when it did not commit.
	Suggested string `json:"suggested,omitempty"`
}

func summarize(item *models.ReviewQueueItem) reviewSummary {
	ext := item.Payload.Extraction
	s := reviewSummary{
		ID:         item.ID.String(),
		MessageID:  item.MessageID,
		Subject:    item.Subject,
		Status:     item.Status,
		Method:     item.Method,
		Confidence: item.Confidence,
		Items:      make([]reviewItemSummary, 0, len(ext.Items)),
	}
	if ext.Client != nil {
		s.Client = ext.Client.Name
		if s.Client == "" {
			s.Client = ext.Client.Email
		}
	}
	for i, it := range ext.Items {
		is := reviewItemSummary{
			Index:      i,
			Material:   it.MaterialText,
			Rate:       it.Rate.String(),
			Unit:       it.Unit,
			Currency:   it.Currency,
			Confidence: it.Confidence,
		}
		if p := item.Payload.Preview; p != nil && i < len(p.Items) && p.Items[i].Candidate != nil {
			is.Suggested = p.Items[i].Candidate.Name
		}
		s.Items = append(s.Items, is)
	}
	return s
}

// RegisterReviewTools adds the review queue tools to the MCP server.
func RegisterReviewTools(s *server.MCPServer, deps *Deps) {
	registerListReviewItemsTool(s, deps)
	registerApproveReviewItemTool(s, deps)
	registerRejectReviewItemTool(s, deps)
	registerCorrectReviewItemTool(s, deps)
}

func registerListReviewItemsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_review_items",
		mcp.WithDescription(
			"List quotation extractions waiting for human review. "+
				"Each item shows the extracted client, line items and the confidence that sent it to review.",
		),
		mcp.WithString(
			"status",
			mcp.Description("Optional - pending (default), approved, rejected, corrected or all"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - maximum items to return (default 50)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := models.ReviewStatus(strings.ToLower(getOptionalString(req, "status")))
		switch status {
		case "":
			status = models.ReviewPending
		case "all":
			status = ""
		}
		limit := 0
		if v, ok := getOptionalFloat(req, "limit"); ok {
			limit = int(v)
		}

		items, err := deps.Reviews.List(ctx, status, limit)
		if err != nil {
			if result := AsServiceErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to list review items: %w", err)
		}

		summaries := make([]reviewSummary, 0, len(items))
		for _, item := range items {
			summaries = append(summaries, summarize(item))
		}
		return jsonResult(map[string]any{
			"items": summaries,
			"total": len(summaries),
		})
	})
}

func registerApproveReviewItemTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"approve_review_item",
		mcp.WithDescription(
			"Approve a pending review item. The stored extraction is written to price history as-is. "+
				"An item can be decided only once.",
		),
		mcp.WithString("id", mcp.Required(), mcp.Description("UUID of the review item")),
		mcp.WithString("reviewer", mcp.Description("Optional - who approved it")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireReviewID(req)
		if bad != nil {
			return bad, nil
		}
		out, err := deps.Reviews.Approve(ctx, id, reviewerOf(req))
		if err != nil {
			return decisionError(deps, "approve", id.String(), err)
		}
		return jsonResult(decisionResult(out, "Review item approved and written to price history"))
	})
}

func registerRejectReviewItemTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"reject_review_item",
		mcp.WithDescription(
			"Reject a pending review item. Nothing is written to price history; "+
				"the reason is kept for failure analysis.",
		),
		mcp.WithString("id", mcp.Required(), mcp.Description("UUID of the review item")),
		mcp.WithString("reason", mcp.Description("Optional - why the extraction is wrong")),
		mcp.WithString("reviewer", mcp.Description("Optional - who rejected it")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireReviewID(req)
		if bad != nil {
			return bad, nil
		}
		item, err := deps.Reviews.Reject(ctx, id, reviewerOf(req), getOptionalString(req, "reason"))
		if err != nil {
			return decisionError(deps, "reject", id.String(), err)
		}
		return jsonResult(map[string]any{
			"id":      item.ID.String(),
			"status":  item.Status,
			"message": "Review item rejected",
		})
	})
}

func registerCorrectReviewItemTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"correct_review_item",
		mcp.WithDescription(
			"Correct a pending review item and write the corrected extraction to price history. "+
				"Reassigning an item to an existing material_id, or the client to a client_id, "+
				"teaches the resolver the extracted text as an alias for future emails.",
		),
		mcp.WithString("id", mcp.Required(), mcp.Description("UUID of the review item")),
		mcp.WithString("reviewer", mcp.Description("Optional - who corrected it")),
		mcp.WithObject(
			"corrections",
			mcp.Required(),
			mcp.Description(`Corrections, e.g. {"client_id": "...", "items": [{"index": 0, "material_id": "...", "rate": "45.50"}, {"index": 1, "remove": true}]}`),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireReviewID(req)
		if bad != nil {
			return bad, nil
		}
		corrections, bad := parseCorrections(req)
		if bad != nil {
			return bad, nil
		}
		out, err := deps.Reviews.Correct(ctx, id, reviewerOf(req), corrections)
		if err != nil {
			return decisionError(deps, "correct", id.String(), err)
		}
		result := decisionResult(out, "Review item corrected and written to price history")
		result["aliases_learned"] = out.Aliases
		return jsonResult(result)
	})
}

// parseCorrections accepts the corrections argument as an object or as a JSON string.
func parseCorrections(req mcp.CallToolRequest) (models.ReviewCorrections, *mcp.CallToolResult) {
	var c models.ReviewCorrections
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok || args["corrections"] == nil {
		return c, NewErrorResult("invalid_parameters", "corrections is required")
	}

	var raw []byte
	if s, isString := args["corrections"].(string); isString {
		raw = []byte(s)
	} else {
		b, err := json.Marshal(args["corrections"])
		if err != nil {
			return c, NewErrorResult("invalid_parameters", fmt.Sprintf("invalid corrections: %v", err))
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, NewErrorResult("invalid_parameters", fmt.Sprintf("invalid corrections: %v", err))
	}
	return c, nil
}

func reviewerOf(req mcp.CallToolRequest) string {
	if r := getOptionalString(req, "reviewer"); r != "" {
		return r
	}
	return "mcp"
}

func decisionResult(out *services.ReviewOutcome, message string) map[string]any {
	return map[string]any{
		"id":      out.Item.ID.String(),
		"status":  out.Item.Status,
		"entries": out.Entries,
		"skipped": out.Skipped,
		"message": message,
	}
}

func decisionError(deps *Deps, action, id string, err error) (*mcp.CallToolResult, error) {
	if result := AsServiceErrorResult(err); result != nil {
		return result, nil
	}
	if deps.Logger != nil {
		deps.Logger.Error("Review decision failed",
			zap.String("action", action),
			zap.String("review_id", id),
			zap.Error(err))
	}
	return nil, fmt.Errorf("failed to %s review item: %w", action, err)
}
