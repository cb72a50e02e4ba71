package extraction

import (
	"regexp"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// ItemAdjustments are the per-item confidence terms of the structured extractor.
// They are empirically tuned; change the numbers here, not the control flow.
type ItemAdjustments struct {
	Baseline             float64
	MissingQuantity      float64
	DefaultedUnit        float64
	MissingTaxCode       float64
	MissingDelivery      float64
	CategoryTerm         float64
	WellFormedTaxCode    float64
	Floor                float64
	Ceiling              float64
	ManyItemsBonus       float64
	ManyItemsMinimum     int
	MissingColumnsResult float64
}

// DefaultItemAdjustments is the tuned adjustment table.
var DefaultItemAdjustments = ItemAdjustments{
	Baseline:             0.92,
	MissingQuantity:      -0.15,
	DefaultedUnit:        -0.10,
	MissingTaxCode:       -0.02,
	MissingDelivery:      -0.02,
	CategoryTerm:         0.05,
	WellFormedTaxCode:    0.03,
	Floor:                0.5,
	Ceiling:              1.0,
	ManyItemsBonus:       0.05,
	ManyItemsMinimum:     4,
	MissingColumnsResult: 0.3,
}

// ColumnWeights contribute to the base score when a header maps the column.
var ColumnWeights = map[vocab.Column]float64{
	vocab.ColumnMaterial: 0.35,
	vocab.ColumnRate:     0.35,
	vocab.ColumnQuantity: 0.15,
	vocab.ColumnUnit:     0.15,
	vocab.ColumnTaxCode:  0.05,
	vocab.ColumnDelivery: 0.05,
}

// HSN/SAC codes are 4 to 8 digits.
var taxCodePattern = regexp.MustCompile(`^\d{4,8}$`)

// weightOrder fixes the summation order so the score is reproducible.
var weightOrder = []vocab.Column{
	vocab.ColumnMaterial,
	vocab.ColumnRate,
	vocab.ColumnQuantity,
	vocab.ColumnUnit,
	vocab.ColumnTaxCode,
	vocab.ColumnDelivery,
}

func baseScore(cols columnMap) float64 {
	var s float64
	for _, col := range weightOrder {
		if cols.has(col) {
			s += ColumnWeights[col]
		}
	}
	return models.Clamp(s, 0, 1)
}

func (a ItemAdjustments) itemConfidence(it models.ExtractedItem, categories []string) float64 {
	c := a.Baseline
	if it.Quantity == nil {
		c += a.MissingQuantity
	}
	if it.UnitDefaulted {
		c += a.DefaultedUnit
	}
	if it.TaxCode == "" {
		c += a.MissingTaxCode
	} else if taxCodePattern.MatchString(it.TaxCode) {
		c += a.WellFormedTaxCode
	}
	if it.DeliveryLocation == "" {
		c += a.MissingDelivery
	}
	if len(categories) > 0 {
		c += a.CategoryTerm
	}
	return models.Clamp(c, a.Floor, a.Ceiling)
}

func (a ItemAdjustments) overall(base float64, items []models.ExtractedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence
	}
	c := (base + sum/float64(len(items))) / 2
	if len(items) >= a.ManyItemsMinimum {
		c += a.ManyItemsBonus
	}
	return models.Clamp(c, 0, 1)
}
