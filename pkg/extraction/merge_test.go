package extraction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

func items(names ...string) []models.ExtractedItem {
	out := make([]models.ExtractedItem, 0, len(names))
	for _, n := range names {
		out = append(out, models.ExtractedItem{MaterialText: n, Rate: decimal.NewFromInt(10), Unit: "MT", Currency: "INR", Confidence: 0.8})
	}
	return out
}

func TestMerge(t *testing.T) {
	quoted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	structured := &models.ExtractionResult{
		Success:    true,
		Method:     models.MethodStructured,
		Items:      items("FIRE BRICK", "MORTAR"),
		Client:     &models.ExtractedClient{Name: "Ravi", Email: "ravi@steelplant.in"},
		QuotedAt:   &quoted,
		Confidence: 0.7,
	}

	t.Run("both present with agreeing counts", func(t *testing.T) {
		fallback := &models.ExtractionResult{
			Success:    true,
			Method:     models.MethodFallback,
			Items:      items("Fire Brick IS-8", "Mortar"),
			Confidence: 0.8,
		}

		merged := Merge(structured, fallback, DefaultMergeConfig)

		assert.Equal(t, models.MethodMerged, merged.Method)
		assert.Equal(t, "Fire Brick IS-8", merged.Items[0].MaterialText, "fallback items are the base")
		assert.InDelta(t, 0.85, merged.Confidence, 1e-9)
		require.NotNil(t, merged.Client)
		assert.Equal(t, "ravi@steelplant.in", merged.Client.Email)
		require.NotNil(t, merged.QuotedAt)
		assert.Equal(t, quoted, *merged.QuotedAt)

		assert.Nil(t, fallback.Client, "inputs are not mutated")
		assert.InDelta(t, 0.8, fallback.Confidence, 1e-9)
	})

	t.Run("both present with different counts", func(t *testing.T) {
		fallback := &models.ExtractionResult{
			Success:    true,
			Method:     models.MethodFallback,
			Items:      items("FIRE BRICK", "MORTAR", "CASTABLE"),
			Client:     &models.ExtractedClient{Name: "Steel Plant"},
			Confidence: 0.8,
		}

		merged := Merge(structured, fallback, DefaultMergeConfig)

		assert.Len(t, merged.Items, 3)
		assert.InDelta(t, 0.8, merged.Confidence, 1e-9)
		assert.Equal(t, "Steel Plant", merged.Client.Name)
		assert.Equal(t, "ravi@steelplant.in", merged.Client.Email, "empty email backfilled")
	})

	t.Run("bonus is clamped", func(t *testing.T) {
		fallback := &models.ExtractionResult{Success: true, Items: items("FIRE BRICK", "MORTAR"), Confidence: 0.99}
		merged := Merge(structured, fallback, DefaultMergeConfig)
		assert.InDelta(t, 1.0, merged.Confidence, 1e-9)
	})

	t.Run("only structured", func(t *testing.T) {
		merged := Merge(structured, nil, DefaultMergeConfig)
		assert.Equal(t, models.MethodStructured, merged.Method)
		assert.InDelta(t, 0.7, merged.Confidence, 1e-9)
		assert.Len(t, merged.Items, 2)
	})

	t.Run("fallback failed", func(t *testing.T) {
		merged := Merge(structured, models.Failed(models.MethodFallback, 0, ReasonFallbackInvalid), DefaultMergeConfig)
		assert.Equal(t, models.MethodStructured, merged.Method)
		assert.True(t, merged.Success)
	})

	t.Run("fallback without items keeps structured items", func(t *testing.T) {
		empty := &models.ExtractionResult{
			Success: true,
			Method:  models.MethodFallback,
			Usage:   &models.LLMUsage{PromptTokens: 900, CompletionTokens: 12, CostUSD: 0.002},
		}

		merged := Merge(structured, empty, DefaultMergeConfig)

		assert.Equal(t, models.MethodStructured, merged.Method)
		assert.True(t, merged.Usable())
		assert.Len(t, merged.Items, 2)
		assert.InDelta(t, 0.7, merged.Confidence, 1e-9)
		require.NotNil(t, merged.Usage, "fallback cost is still accounted")
		assert.Equal(t, 900, merged.Usage.PromptTokens)
		assert.Nil(t, structured.Usage, "inputs are not mutated")
	})

	t.Run("structured failed", func(t *testing.T) {
		fallback := &models.ExtractionResult{Success: true, Method: models.MethodFallback, Items: items("MORTAR"), Confidence: 0.75}
		merged := Merge(models.Failed(models.MethodStructured, 0, ReasonNoTable), fallback, DefaultMergeConfig)
		assert.Equal(t, models.MethodFallback, merged.Method)
		assert.InDelta(t, 0.75, merged.Confidence, 1e-9)
	})

	t.Run("both failed keeps the fallback reason", func(t *testing.T) {
		merged := Merge(models.Failed(models.MethodStructured, 0.3, ReasonMissingColumns), models.Failed(models.MethodFallback, 0, ReasonFallbackDisabled), DefaultMergeConfig)
		assert.False(t, merged.Success)
		assert.Equal(t, ReasonFallbackDisabled, merged.Reason)
	})

	t.Run("nothing ran", func(t *testing.T) {
		merged := Merge(nil, nil, DefaultMergeConfig)
		assert.False(t, merged.Success)
		assert.Equal(t, models.MethodNone, merged.Method)
	})
}
