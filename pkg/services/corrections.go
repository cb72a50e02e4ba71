package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/apperrors"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// correctedExtraction is a stored extraction with reviewer corrections applied.
type correctedExtraction struct {
	extraction *models.ExtractionResult
	// materialIDs are reviewer-chosen materials keyed by index in extraction.
	materialIDs map[int]uuid.UUID
	// indexMap maps an original item index to its index after removals.
	indexMap map[int]int
}

// applyCorrections returns a copy of ext with corrections merged in. The
// stored extraction is left untouched.
func applyCorrections(ext *models.ExtractionResult, c models.ReviewCorrections) (*correctedExtraction, error) {
	byIndex := make(map[int]models.ItemCorrection, len(c.Items))
	for _, ic := range c.Items {
		if ic.Index < 0 || ic.Index >= len(ext.Items) {
			return nil, fmt.Errorf("%w: item index %d out of range (extraction has %d items)", apperrors.ErrInvalidInput, ic.Index, len(ext.Items))
		}
		if _, dup := byIndex[ic.Index]; dup {
			return nil, fmt.Errorf("%w: item index %d corrected twice", apperrors.ErrInvalidInput, ic.Index)
		}
		if ic.Rate != nil && !ic.Rate.IsPositive() {
			return nil, fmt.Errorf("%w: item %d rate must be positive", apperrors.ErrInvalidInput, ic.Index)
		}
		byIndex[ic.Index] = ic
	}

	out := &correctedExtraction{
		extraction: &models.ExtractionResult{
			Success:    true,
			Method:     models.MethodHumanReview,
			QuotedAt:   ext.QuotedAt,
			Terms:      ext.Terms,
			Confidence: 1.0,
		},
		materialIDs: make(map[int]uuid.UUID),
		indexMap:    make(map[int]int),
	}

	if ext.Client != nil {
		cl := *ext.Client
		out.extraction.Client = &cl
	}
	if c.ClientName != nil {
		if out.extraction.Client == nil {
			out.extraction.Client = &models.ExtractedClient{}
		}
		out.extraction.Client.Name = strings.TrimSpace(*c.ClientName)
	}
	if c.QuotedAt != nil {
		t := *c.QuotedAt
		out.extraction.QuotedAt = &t
	}

	for i, it := range ext.Items {
		ic, ok := byIndex[i]
		if ok && ic.Remove {
			continue
		}
		if ok {
			if ic.MaterialText != nil {
				it.MaterialText = *ic.MaterialText
			}
			if ic.Rate != nil {
				it.Rate = *ic.Rate
			}
			if ic.Quantity != nil {
				q := *ic.Quantity
				it.Quantity = &q
			}
			if ic.Unit != nil {
				it.Unit = *ic.Unit
				it.UnitDefaulted = false
			}
			if ic.Currency != nil {
				it.Currency = *ic.Currency
			}
		}
		it.Confidence = 1.0

		newIndex := len(out.extraction.Items)
		out.extraction.Items = append(out.extraction.Items, it)
		out.indexMap[i] = newIndex
		if ok && ic.MaterialID != nil {
			out.materialIDs[newIndex] = *ic.MaterialID
		}
	}

	out.extraction.Validate()
	if len(out.extraction.Items) != len(out.indexMap) {
		return nil, fmt.Errorf("%w: a corrected item has no material text", apperrors.ErrInvalidInput)
	}
	return out, nil
}
