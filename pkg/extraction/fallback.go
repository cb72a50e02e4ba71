package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/jsonutil"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/llm"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/logging"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/prompts"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// ReasonFallbackDisabled is reported when no language model is configured.
const ReasonFallbackDisabled = "fallback_disabled"

const (
	// defaultItemConfidence is assumed when the model omits an item confidence.
	defaultItemConfidence = 0.8
	fallbackTemperature   = 0.0
)

var quotationDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// FallbackDeps are the collaborators of a FallbackExtractor.
type FallbackDeps struct {
	// Client may be nil, which disables the extractor.
	Client        llm.LLMClient
	Usage         *llm.UsageTracker
	Vocabulary    *vocab.Vocabulary
	MaxInputChars int
	Logger        *zap.Logger
}

// FallbackExtractor asks a language model for the quotation when the
// structured extractor is not confident enough.
type FallbackExtractor struct {
	client        llm.LLMClient
	usage         *llm.UsageTracker
	values        *valueParser
	maxInputChars int
	logger        *zap.Logger
}

// NewFallbackExtractor creates a FallbackExtractor.
func NewFallbackExtractor(deps FallbackDeps) *FallbackExtractor {
	usage := deps.Usage
	if usage == nil {
		usage = llm.NewUsageTracker(llm.Pricing{})
	}
	v := deps.Vocabulary
	if v == nil {
		v = vocab.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackExtractor{
		client:        deps.Client,
		usage:         usage,
		values:        newValueParser(v),
		maxInputChars: deps.MaxInputChars,
		logger:        logger.Named("fallback-extractor"),
	}
}

// Enabled reports whether a language model is configured.
func (e *FallbackExtractor) Enabled() bool {
	return e != nil && e.client != nil
}

// Usage returns the cumulative call, token and cost totals.
func (e *FallbackExtractor) Usage() llm.UsageSnapshot {
	return e.usage.Snapshot()
}

// Extract calls the model once. Empty or malformed replies are failed results;
// the error return is reserved for the model service itself failing (network,
// auth, open circuit, cancelled context) so callers can mark the message failed.
func (e *FallbackExtractor) Extract(ctx context.Context, email prompts.QuotationEmail, catalogSample []string) (*models.ExtractionResult, error) {
	if !e.Enabled() {
		return models.Failed(models.MethodFallback, 0, ReasonFallbackDisabled), nil
	}
	if strings.TrimSpace(email.Body) == "" {
		return models.Failed(models.MethodFallback, 0, ReasonNoItems), nil
	}
	if e.maxInputChars > 0 {
		email.Body = logging.TruncateString(email.Body, e.maxInputChars)
	}

	prompt := prompts.BuildQuotationExtractionPrompt(email, catalogSample)
	res, err := e.client.GenerateResponse(ctx, prompt, prompts.QuotationSystemMessage, fallbackTemperature)
	if err != nil {
		e.usage.RecordFailure()
		e.logger.Warn("Fallback extraction call failed",
			zap.String("model", e.client.GetModel()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("fallback extraction: %w", err)
	}

	usage := e.usage.Record(res)
	result := e.parse(res.Content)
	result.Usage = &usage
	return result.Validate(), nil
}

type fallbackResponse struct {
	Client *struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		ContactPerson string `json:"contact_person"`
	} `json:"client"`
	Items    []fallbackItem          `json:"items"`
	Terms    *models.CommercialTerms `json:"terms"`
	Metadata struct {
		QuotationDate *string `json:"quotation_date"`
	} `json:"metadata"`
}

type fallbackItem struct {
	Name             string                  `json:"name"`
	Quantity         jsonutil.FlexibleString `json:"quantity"`
	Unit             string                  `json:"unit"`
	Rate             jsonutil.FlexibleString `json:"rate"`
	Currency         string                  `json:"currency"`
	HSNCode          jsonutil.FlexibleString `json:"hsn_code"`
	DeliveryLocation string                  `json:"delivery_location"`
	Confidence       *float64                `json:"confidence"`
}

func (e *FallbackExtractor) parse(content string) *models.ExtractionResult {
	if strings.TrimSpace(content) == "" {
		return models.Failed(models.MethodFallback, 0, ReasonFallbackEmpty)
	}
	resp, err := llm.ParseJSONResponse[fallbackResponse](content)
	if err != nil {
		e.logger.Debug("Unparseable fallback response", zap.Error(err))
		return models.Failed(models.MethodFallback, 0, ReasonFallbackInvalid)
	}

	result := &models.ExtractionResult{
		Success: true,
		Method:  models.MethodFallback,
		Terms:   resp.Terms,
	}
	if resp.Client != nil {
		result.Client = &models.ExtractedClient{
			Name:    resp.Client.Name,
			Email:   resp.Client.Email,
			Contact: resp.Client.ContactPerson,
		}
	}
	if resp.Metadata.QuotationDate != nil {
		result.QuotedAt = parseQuotationDate(*resp.Metadata.QuotationDate)
	}

	var sum float64
	for _, fi := range resp.Items {
		it, ok := e.toItem(fi)
		if !ok {
			continue
		}
		sum += it.Confidence
		result.Items = append(result.Items, it)
	}
	if len(result.Items) == 0 {
		return models.Failed(models.MethodFallback, 0, ReasonFallbackEmpty)
	}
	result.Confidence = sum / float64(len(result.Items))
	return result
}

func (e *FallbackExtractor) toItem(fi fallbackItem) (models.ExtractedItem, bool) {
	name := strings.TrimSpace(fi.Name)
	if name == "" {
		return models.ExtractedItem{}, false
	}
	rate, currency, ok := e.values.parseAmount(fi.Rate.String())
	if !ok || !rate.IsPositive() {
		return models.ExtractedItem{}, false
	}
	it := models.ExtractedItem{
		MaterialText:     name,
		Rate:             rate,
		Currency:         strings.ToUpper(strings.TrimSpace(fi.Currency)),
		TaxCode:          cleanTaxCode(fi.HSNCode.String()),
		DeliveryLocation: fi.DeliveryLocation,
		Confidence:       defaultItemConfidence,
	}
	if it.Currency == "" {
		it.Currency = currency
	}
	if qty, _ := parseQuantity(fi.Quantity.String()); qty != nil {
		it.Quantity = qty
	}
	it.Unit, it.UnitDefaulted = e.values.canonicalUnit(fi.Unit)
	if fi.Confidence != nil {
		it.Confidence = models.Clamp(*fi.Confidence, 0, 1)
	}
	return it, true
}

func parseQuotationDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range quotationDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
