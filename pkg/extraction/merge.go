package extraction

import "github.com/Nihar1310/SalesAgent-sub001/pkg/models"

// MergeConfig tunes the merge arbiter.
type MergeConfig struct {
	// AgreementBonus is added to the fallback confidence when both extractors
	// found the same number of items.
	AgreementBonus float64
}

// DefaultMergeConfig matches the default thresholds.
var DefaultMergeConfig = MergeConfig{AgreementBonus: 0.05}

// Merge reconciles the two extractor results. Either may be nil (not run).
// When both produced items the fallback items are the base; the structured
// result only fills in identity and date gaps. A fallback without items never
// replaces structured items. Merge never mutates its arguments and the returned
// result is always validated.
func Merge(structured, fallback *models.ExtractionResult, cfg MergeConfig) *models.ExtractionResult {
	sOK := structured != nil && structured.Success
	fOK := fallback.Usable()

	switch {
	case sOK && fOK:
		merged := clone(fallback)
		merged.Method = models.MethodMerged
		if len(fallback.Items) == len(structured.Items) {
			merged.Confidence = models.Clamp(merged.Confidence+cfg.AgreementBonus, 0, 1)
		}
		if merged.Client.IsEmpty() && !structured.Client.IsEmpty() {
			c := *structured.Client
			merged.Client = &c
		} else if merged.Client != nil && structured.Client != nil {
			if merged.Client.Email == "" {
				merged.Client.Email = structured.Client.Email
			}
			if merged.Client.Name == "" {
				merged.Client.Name = structured.Client.Name
			}
			if merged.Client.Contact == "" {
				merged.Client.Contact = structured.Client.Contact
			}
		}
		if merged.QuotedAt == nil && structured.QuotedAt != nil {
			t := *structured.QuotedAt
			merged.QuotedAt = &t
		}
		return merged.Validate()
	case fOK:
		return clone(fallback).Validate()
	case sOK:
		merged := clone(structured)
		if fallback != nil && fallback.Usage != nil {
			u := *fallback.Usage
			merged.Usage = &u
		}
		return merged.Validate()
	case fallback != nil:
		return clone(fallback).Validate()
	case structured != nil:
		return clone(structured).Validate()
	default:
		return models.Failed(models.MethodNone, 0, ReasonNoItems)
	}
}

// clone copies the parts of r that Merge or Validate may change.
func clone(r *models.ExtractionResult) *models.ExtractionResult {
	cp := *r
	cp.Items = append([]models.ExtractedItem(nil), r.Items...)
	if r.Client != nil {
		c := *r.Client
		cp.Client = &c
	}
	if r.QuotedAt != nil {
		t := *r.QuotedAt
		cp.QuotedAt = &t
	}
	if r.Terms != nil {
		t := *r.Terms
		cp.Terms = &t
	}
	if r.Usage != nil {
		u := *r.Usage
		cp.Usage = &u
	}
	return &cp
}
