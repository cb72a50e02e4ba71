package llm

import (
	"sync"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// Pricing is the USD price per million tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost estimates the USD cost of a call.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.InputPerMillion/1e6 +
		float64(completionTokens)*p.OutputPerMillion/1e6
}

// UsageSnapshot is a point-in-time copy of cumulative usage.
type UsageSnapshot struct {
	Calls            int     `json:"calls"`
	Failures         int     `json:"failures"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageTracker accumulates token usage and estimated cost for the process.
// It is safe for concurrent use.
type UsageTracker struct {
	mu      sync.Mutex
	pricing Pricing
	total   UsageSnapshot
}

// NewUsageTracker creates a tracker that prices calls with p.
func NewUsageTracker(p Pricing) *UsageTracker {
	return &UsageTracker{pricing: p}
}

// Record adds one successful call and returns its own usage.
func (t *UsageTracker) Record(res *GenerateResponseResult) models.LLMUsage {
	if res == nil {
		return models.LLMUsage{}
	}
	usage := models.LLMUsage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		CostUSD:          t.pricing.Cost(res.PromptTokens, res.CompletionTokens),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Calls++
	t.total.PromptTokens += usage.PromptTokens
	t.total.CompletionTokens += usage.CompletionTokens
	t.total.CostUSD += usage.CostUSD
	return usage
}

// RecordFailure counts a call that produced no usable response.
func (t *UsageTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Calls++
	t.total.Failures++
}

// Snapshot returns the cumulative totals.
func (t *UsageTracker) Snapshot() UsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
