package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceHistoryEntry is one quoted rate for a material to a client. Entries are
// append-only; the latest price for a pair is the one with the greatest QuotedAt.
type PriceHistoryEntry struct {
	ID              uuid.UUID        `json:"id"`
	MaterialID      uuid.UUID        `json:"material_id"`
	ClientID        uuid.UUID        `json:"client_id"`
	Rate            decimal.Decimal  `json:"rate"`
	Currency        string           `json:"currency"`
	Unit            string           `json:"unit"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	DeliveryTerms   string           `json:"delivery_terms,omitempty"`
	QuotedAt        time.Time        `json:"quoted_at"`
	Provenance      Provenance       `json:"provenance"`
	SourceMessageID string           `json:"source_message_id,omitempty"`
	SourceThreadID  string           `json:"source_thread_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
