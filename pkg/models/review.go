package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReviewStatus is the review queue state. Pending moves to exactly one
// terminal state; terminal states never change.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewCorrected ReviewStatus = "corrected"
)

// IsValid returns true for a known status.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewCorrected:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once a review decision has been taken.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewApproved || s == ReviewRejected || s == ReviewCorrected
}

// SourceMessage identifies the email an extraction came from.
type SourceMessage struct {
	MessageID  string    `json:"message_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ResolutionPreview is the read-only resolver outcome stored with a queued
// extraction so the reviewer sees what would have been committed.
type ResolutionPreview struct {
	Client MatchResult   `json:"client"`
	Items  []MatchResult `json:"items"`
}

// ReviewPayload is the JSON document kept in ReviewQueueItem.Payload.
type ReviewPayload struct {
	Source     SourceMessage      `json:"source"`
	Extraction ExtractionResult   `json:"extraction"`
	Preview    *ResolutionPreview `json:"preview,omitempty"`
}

// ReviewQueueItem is an extraction awaiting a human decision.
type ReviewQueueItem struct {
	ID          uuid.UUID          `json:"id"`
	MessageID   string             `json:"message_id"`
	ThreadID    string             `json:"thread_id,omitempty"`
	Subject     string             `json:"subject,omitempty"`
	Payload     ReviewPayload      `json:"payload"`
	Confidence  float64            `json:"confidence"`
	Method      ExtractionMethod   `json:"method"`
	Status      ReviewStatus       `json:"status"`
	ReviewedBy  *string            `json:"reviewed_by,omitempty"`
	Corrections *ReviewCorrections `json:"corrections,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	ReviewedAt  *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ReviewCorrections is what a reviewer changes before an extraction is replayed.
type ReviewCorrections struct {
	// ClientID reassigns the quotation to an existing client.
	ClientID *uuid.UUID `json:"client_id,omitempty"`
	// ClientName replaces the extracted client name when ClientID is not given.
	ClientName *string `json:"client_name,omitempty"`
	// QuotedAt fixes the quotation date.
	QuotedAt *time.Time `json:"quoted_at,omitempty"`
	// Items addresses extracted items by their index in the stored extraction.
	Items []ItemCorrection `json:"items,omitempty"`
}

// ItemCorrection changes one extracted item. Nil fields are left as extracted.
type ItemCorrection struct {
	Index        int              `json:"index"`
	Remove       bool             `json:"remove,omitempty"`
	MaterialID   *uuid.UUID       `json:"material_id,omitempty"`
	MaterialText *string          `json:"material_text,omitempty"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	Currency     *string          `json:"currency,omitempty"`
}
