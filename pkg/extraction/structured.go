// Package extraction turns quotation emails into ExtractionResults. The
// structured extractor reads HTML tables; the fallback extractor asks a
// language model; Merge reconciles the two.
package extraction

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/normalize"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// Failure reasons reported by the structured extractor.
const (
	ReasonNoHTML          = "no_html"
	ReasonParseError      = "parse_error"
	ReasonNoTable         = "no_table"
	ReasonMissingColumns  = "missing_required_columns"
	ReasonNoItems         = "no_items"
	ReasonFallbackEmpty   = "empty_response"
	ReasonFallbackInvalid = "invalid_response"
	ReasonFallbackError   = "llm_error"
)

// StructuredExtractor reads the best quotation table from an HTML body.
// It holds no mutable state and is deterministic for a given input.
type StructuredExtractor struct {
	vocab       *vocab.Vocabulary
	normalizer  *normalize.Normalizer
	headers     *headerMatcher
	values      *valueParser
	identity    *identityResolver
	adjustments ItemAdjustments
}

// NewStructuredExtractor builds an extractor over v. ownDomains are the
// organisation's mail domains, used to pick the client side of the envelope.
func NewStructuredExtractor(v *vocab.Vocabulary, ownDomains []string) *StructuredExtractor {
	return &StructuredExtractor{
		vocab:       v,
		normalizer:  normalize.New(v),
		headers:     newHeaderMatcher(v),
		values:      newValueParser(v),
		identity:    newIdentityResolver(v, ownDomains),
		adjustments: DefaultItemAdjustments,
	}
}

// WithAdjustments returns a copy that scores items with a.
func (e *StructuredExtractor) WithAdjustments(a ItemAdjustments) *StructuredExtractor {
	cp := *e
	cp.adjustments = a
	return &cp
}

// Extract never returns an error: irregular input is reported as a result
// with Success=false, a confidence and a reason.
func (e *StructuredExtractor) Extract(body string, env Envelope) *models.ExtractionResult {
	if strings.TrimSpace(body) == "" {
		return models.Failed(models.MethodStructured, 0, ReasonNoHTML)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return models.Failed(models.MethodStructured, 0, fmt.Sprintf("%s: %v", ReasonParseError, err))
	}

	var (
		best    table
		bestFit = tableScore{headerRow: -1}
	)
	// Strictly greater: on a tie the earlier table in the document wins.
	for _, t := range collectTables(doc) {
		if s := e.headers.score(t); s.score > bestFit.score {
			best, bestFit = t, s
		}
	}
	if bestFit.score == 0 {
		return models.Failed(models.MethodStructured, 0, ReasonNoTable)
	}

	cols := bestFit.columns
	if !cols.has(vocab.ColumnMaterial) || !cols.has(vocab.ColumnRate) {
		return models.Failed(models.MethodStructured, e.adjustments.MissingColumnsResult, ReasonMissingColumns)
	}

	var items []models.ExtractedItem
	for _, row := range best.rows[bestFit.headerRow+1:] {
		if it, ok := e.readItem(row, cols); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return models.Failed(models.MethodStructured, 0, ReasonNoItems)
	}

	res := &models.ExtractionResult{
		Success:    true,
		Method:     models.MethodStructured,
		Items:      items,
		Client:     e.identity.client(env),
		Confidence: e.adjustments.overall(baseScore(cols), items),
	}
	return res.Validate()
}

func (e *StructuredExtractor) readItem(row []string, cols columnMap) (models.ExtractedItem, bool) {
	cell := func(c vocab.Column) string {
		i, ok := cols[c]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	name := cell(vocab.ColumnMaterial)
	if name == "" || isTotalRow(name) {
		return models.ExtractedItem{}, false
	}
	rate, currency, ok := e.values.parseAmount(cell(vocab.ColumnRate))
	if !ok || !rate.IsPositive() {
		return models.ExtractedItem{}, false
	}

	it := models.ExtractedItem{
		MaterialText:     name,
		Rate:             rate,
		Currency:         currency,
		TaxCode:          cleanTaxCode(cell(vocab.ColumnTaxCode)),
		DeliveryLocation: cell(vocab.ColumnDelivery),
	}

	qty, unitHint := parseQuantity(cell(vocab.ColumnQuantity))
	it.Quantity = qty
	unitText := cell(vocab.ColumnUnit)
	if unitText == "" {
		unitText = unitHint
	}
	it.Unit, it.UnitDefaulted = e.values.canonicalUnit(unitText)

	if it.Currency == "" {
		if _, c, _ := e.values.parseAmount(cell(vocab.ColumnCurrency)); c != "" {
			it.Currency = c
		} else if code := strings.ToUpper(cell(vocab.ColumnCurrency)); len(code) == 3 {
			it.Currency = code
		} else {
			it.Currency = models.DefaultCurrency
		}
	}

	categories := e.vocab.CategoriesOf(e.normalizer.Normalize(normalize.Material, name))
	it.Confidence = e.adjustments.itemConfidence(it, categories)
	return it, true
}

func isTotalRow(name string) bool {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range []string{"TOTAL", "GRAND TOTAL", "SUB TOTAL", "SUBTOTAL", "NET TOTAL"} {
		if upper == p || strings.HasPrefix(upper, p+" ") || strings.HasPrefix(upper, p+":") {
			return true
		}
	}
	return false
}
