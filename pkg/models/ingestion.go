package models

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion log status values.
const (
	IngestionStatusSuccess = "success"
	IngestionStatusPartial = "partial"
	IngestionStatusFailed  = "failed"
)

// IngestionLogRecord is the per-message dedup ledger. MessageID is unique and a
// message with a record is never reprocessed by a later run.
type IngestionLogRecord struct {
	ID          uuid.UUID `json:"id"`
	MessageID   string    `json:"message_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	ItemCount   int       `json:"item_count"`
	Status      string    `json:"status"`
	ErrorText   string    `json:"error_text,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ExtractionMethod names the producer of an extraction result.
type ExtractionMethod string

const (
	MethodStructured  ExtractionMethod = "structured"
	MethodFallback    ExtractionMethod = "fallback"
	MethodMerged      ExtractionMethod = "merged"
	MethodHumanReview ExtractionMethod = "human_review"
	MethodNone        ExtractionMethod = "none"
)

// ParsingHistoryRecord is telemetry for one successful extraction.
type ParsingHistoryRecord struct {
	ID               uuid.UUID        `json:"id"`
	MessageID        string           `json:"message_id"`
	Method           ExtractionMethod `json:"method"`
	Confidence       float64          `json:"confidence"`
	ItemCount        int              `json:"item_count"`
	CostUSD          float64          `json:"cost_usd"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	LatencyMS        int64            `json:"latency_ms"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Failure stages recorded in ParsingFailureRecord.Stage.
const (
	StageFetch      = "fetch"
	StageExtraction = "extraction"
	StagePersist    = "persist"
	StageReview     = "review"
)

// ParsingFailureRecord is telemetry for one failed message or rejected review.
type ParsingFailureRecord struct {
	ID        uuid.UUID        `json:"id"`
	MessageID string           `json:"message_id"`
	Method    ExtractionMethod `json:"method"`
	Stage     string           `json:"stage"`
	ErrorText string           `json:"error_text"`
	Subject   string           `json:"subject,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MethodStats aggregates parsing history for one method.
type MethodStats struct {
	Method         ExtractionMethod `json:"method"`
	Count          int              `json:"count"`
	MeanConfidence float64          `json:"mean_confidence"`
	Items          int              `json:"items"`
	CostUSD        float64          `json:"cost_usd"`
}

// FailurePattern groups failures with identical error text.
type FailurePattern struct {
	Stage     string    `json:"stage"`
	ErrorText string    `json:"error_text"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// TelemetryStats is the learning-store summary served to operators.
type TelemetryStats struct {
	Since          time.Time     `json:"since"`
	Methods        []MethodStats `json:"methods"`
	Failures       int           `json:"failures"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	PendingReviews int           `json:"pending_reviews"`
}
