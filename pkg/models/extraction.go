package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a quotation states no currency.
const DefaultCurrency = "INR"

// ExtractedItem is one quotation line as read from an email. It is transient:
// it becomes a PriceHistoryEntry only after both entities are resolved.
type ExtractedItem struct {
	MaterialText     string           `json:"material_text"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	Unit             string           `json:"unit"`
	UnitDefaulted    bool             `json:"unit_defaulted,omitempty"`
	Rate             decimal.Decimal  `json:"rate"`
	Currency         string           `json:"currency"`
	TaxCode          string           `json:"tax_code,omitempty"`
	DeliveryLocation string           `json:"delivery_location,omitempty"`
	Confidence       float64          `json:"confidence"`
}

// ExtractedClient is the client identity an extractor could see.
type ExtractedClient struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// IsEmpty reports whether no identity was found.
func (c *ExtractedClient) IsEmpty() bool {
	return c == nil || (c.Name == "" && c.Email == "")
}

// Domain returns the lower-cased domain of Email, or "".
func (c *ExtractedClient) Domain() string {
	if c == nil {
		return ""
	}
	at := strings.LastIndexByte(c.Email, '@')
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return strings.ToLower(c.Email[at+1:])
}

// CommercialTerms are free-text quotation terms when an extractor finds them.
type CommercialTerms struct {
	Payment  string `json:"payment,omitempty"`
	Delivery string `json:"delivery,omitempty"`
	Validity string `json:"validity,omitempty"`
}

// LLMUsage is the token and cost footprint of one extraction.
type LLMUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// ExtractionResult is the one shape produced by both extractors and by Merge.
// Failures are represented with Success=false and a Reason, never as errors.
type ExtractionResult struct {
	Success    bool             `json:"success"`
	Method     ExtractionMethod `json:"method"`
	Items      []ExtractedItem  `json:"items"`
	Client     *ExtractedClient `json:"client,omitempty"`
	QuotedAt   *time.Time       `json:"quoted_at,omitempty"`
	Terms      *CommercialTerms `json:"terms,omitempty"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason,omitempty"`
	Usage      *LLMUsage        `json:"usage,omitempty"`
}

// Failed builds a failure result.
func Failed(method ExtractionMethod, confidence float64, reason string) *ExtractionResult {
	return &ExtractionResult{
		Method:     method,
		Confidence: confidence,
		Reason:     reason,
	}
}

// Usable reports whether r is a successful result with at least one item.
func (r *ExtractionResult) Usable() bool {
	return r != nil && r.Success && len(r.Items) > 0
}

// Validate canonicalises optional fields in place so that callers downstream
// of the merge never need to re-check them: text is trimmed, units are upper
// case, currency defaults to INR, items without material text are dropped and
// every confidence is clamped to [0, 1].
func (r *ExtractionResult) Validate() *ExtractionResult {
	if r == nil {
		return nil
	}
	items := r.Items[:0]
	for _, it := range r.Items {
		it.MaterialText = strings.Join(strings.Fields(it.MaterialText), " ")
		if it.MaterialText == "" {
			continue
		}
		it.Unit = strings.ToUpper(strings.TrimSpace(it.Unit))
		it.Currency = strings.ToUpper(strings.TrimSpace(it.Currency))
		if it.Currency == "" {
			it.Currency = DefaultCurrency
		}
		it.TaxCode = strings.TrimSpace(it.TaxCode)
		it.DeliveryLocation = strings.TrimSpace(it.DeliveryLocation)
		it.Confidence = Clamp(it.Confidence, 0, 1)
		items = append(items, it)
	}
	r.Items = items

	if r.Client != nil {
		r.Client.Name = strings.TrimSpace(r.Client.Name)
		r.Client.Email = strings.ToLower(strings.TrimSpace(r.Client.Email))
		r.Client.Contact = strings.TrimSpace(r.Client.Contact)
		if r.Client.IsEmpty() {
			r.Client = nil
		}
	}
	r.Confidence = Clamp(r.Confidence, 0, 1)
	return r
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
