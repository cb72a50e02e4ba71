package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/llm"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/prompts"
)

func newTestFallback(client llm.LLMClient) (*FallbackExtractor, *llm.UsageTracker) {
	usage := llm.NewUsageTracker(llm.Pricing{InputPerMillion: 0.15, OutputPerMillion: 0.60})
	return NewFallbackExtractor(FallbackDeps{
		Client:        client,
		Usage:         usage,
		MaxInputChars: 2000,
		Logger:        zap.NewNop(),
	}), usage
}

var testEmail = prompts.QuotationEmail{
	Subject: "Quotation for refractories",
	From:    "sales@supplier.in",
	Body:    "Fire brick IS-8 Rs 45.50 per piece, 500 nos. Mortar 9,800/MT.",
}

func TestFallbackExtractor_Disabled(t *testing.T) {
	e, _ := newTestFallback(nil)

	res, err := e.Extract(context.Background(), testEmail, nil)

	require.NoError(t, err)
	assert.False(t, e.Enabled())
	assert.False(t, res.Success)
	assert.Equal(t, ReasonFallbackDisabled, res.Reason)
	assert.Equal(t, models.MethodFallback, res.Method)
}

func TestFallbackExtractor_ParsesResponse(t *testing.T) {
	content := "```json\n" + `{
  "client": {"name": "Steel Plant Ltd", "email": "", "contact_person": "Ravi"},
  "items": [
    {"name": "FIRE BRICK IS-8", "quantity": "500", "unit": "nos", "rate": "Rs 45.50", "currency": "", "hsn_code": 690220, "delivery_location": "Bhilai", "confidence": 0.9},
    {"name": "MORTAR", "quantity": null, "unit": "tonnes", "rate": 9800, "currency": "INR", "hsn_code": "", "delivery_location": "", "confidence": 0.7},
    {"name": "", "rate": 10},
    {"name": "FREIGHT", "rate": 0}
  ],
  "terms": {"payment": "30 days", "delivery": "2 weeks", "validity": "15 days"},
  "metadata": {"quotation_date": "2024-03-05"}
}` + "\n```"
	mock := llm.NewMockLLMClientWithResponse(content, 1000, 200)
	e, usage := newTestFallback(mock)

	res, err := e.Extract(context.Background(), testEmail, []string{"FIRE BRICK IS-8"})

	require.NoError(t, err)
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, models.MethodFallback, res.Method)
	require.Len(t, res.Items, 2)

	brick := res.Items[0]
	assert.True(t, brick.Rate.Equal(decimal.RequireFromString("45.50")))
	assert.Equal(t, "INR", brick.Currency)
	assert.Equal(t, "NOS", brick.Unit)
	assert.Equal(t, "690220", brick.TaxCode)
	require.NotNil(t, brick.Quantity)
	assert.True(t, brick.Quantity.Equal(decimal.NewFromInt(500)))

	mortar := res.Items[1]
	assert.Nil(t, mortar.Quantity)
	assert.Equal(t, "MT", mortar.Unit)
	assert.False(t, mortar.UnitDefaulted)

	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	require.NotNil(t, res.Client)
	assert.Equal(t, "Steel Plant Ltd", res.Client.Name)
	require.NotNil(t, res.QuotedAt)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *res.QuotedAt)
	require.NotNil(t, res.Terms)
	assert.Equal(t, "30 days", res.Terms.Payment)

	require.NotNil(t, res.Usage)
	assert.Equal(t, 1000, res.Usage.PromptTokens)
	assert.InDelta(t, 0.00015+0.00012, res.Usage.CostUSD, 1e-12)

	snap := usage.Snapshot()
	assert.Equal(t, 1, snap.Calls)
	assert.Equal(t, 200, snap.CompletionTokens)

	assert.Contains(t, mock.LastPrompt, "FIRE BRICK IS-8")
	assert.Contains(t, mock.LastPrompt, "Quotation for refractories")
}

func TestFallbackExtractor_BadResponses(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantReason string
	}{
		{name: "empty", content: "   ", wantReason: ReasonFallbackEmpty},
		{name: "prose", content: "I could not find a quotation.", wantReason: ReasonFallbackInvalid},
		{name: "wrong shape", content: `{"items": "none"}`, wantReason: ReasonFallbackInvalid},
		{name: "no items", content: `{"items": []}`, wantReason: ReasonFallbackEmpty},
		{name: "no usable items", content: `{"items": [{"name": "", "rate": "10"}, {"name": "MORTAR", "rate": "n/a"}]}`, wantReason: ReasonFallbackEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestFallback(llm.NewMockLLMClientWithResponse(tt.content, 10, 5))

			res, err := e.Extract(context.Background(), testEmail, nil)

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Empty(t, res.Items)
			assert.Zero(t, res.Confidence)
			assert.False(t, res.Usable())
		})
	}
}

func TestFallbackExtractor_EmptyReplyKeepsUsage(t *testing.T) {
	e, usage := newTestFallback(llm.NewMockLLMClientWithResponse(`{"items": []}`, 1000, 200))

	res, err := e.Extract(context.Background(), testEmail, nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 1000, res.Usage.PromptTokens)
	assert.Equal(t, 1, usage.Snapshot().Calls)
}

func TestFallbackExtractor_ServiceErrorIsReturned(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		return nil, errors.New("401 unauthorized: invalid api key")
	}
	e, usage := newTestFallback(mock)

	res, err := e.Extract(context.Background(), testEmail, nil)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, usage.Snapshot().Failures)
}

func TestFallbackExtractor_TruncatesBody(t *testing.T) {
	mock := llm.NewMockLLMClientWithResponse(`{"items": []}`, 1, 1)
	e := NewFallbackExtractor(FallbackDeps{Client: mock, MaxInputChars: 10})

	email := testEmail
	email.Body = "0123456789ABCDEFGHIJ"
	_, err := e.Extract(context.Background(), email, nil)

	require.NoError(t, err)
	assert.Contains(t, mock.LastPrompt, "0123456789...")
	assert.NotContains(t, mock.LastPrompt, "ABCDEFGHIJ")
}
