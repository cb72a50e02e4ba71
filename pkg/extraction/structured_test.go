package extraction

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

func newTestStructured() *StructuredExtractor {
	return NewStructuredExtractor(vocab.Default(), []string{"acme-refractories.com"})
}

const fireBrickTable = `<html><body>
<p>Dear Sir, please find our offer below.</p>
<table border="1">
  <tr><th>Sr</th><th>Material Description</th><th>Qty</th><th>Unit</th><th>Rate (Rs)</th></tr>
  <tr><td>1</td><td>FIRE BRICK 30%-35% AL2O3 STD</td><td>500</td><td>NOS</td><td>45.50</td></tr>
  <tr><td></td><td>Total</td><td></td><td></td><td>22,750.00</td></tr>
</table>
</body></html>`

func TestStructuredExtractor_FireBrickQuotation(t *testing.T) {
	e := newTestStructured()

	res := e.Extract(fireBrickTable, Envelope{From: "Ravi Kumar <ravi@steelplant.in>"})

	require.True(t, res.Success, res.Reason)
	assert.Equal(t, models.MethodStructured, res.Method)
	require.Len(t, res.Items, 1)

	it := res.Items[0]
	assert.Equal(t, "FIRE BRICK 30%-35% AL2O3 STD", it.MaterialText)
	assert.Equal(t, "NOS", it.Unit)
	assert.False(t, it.UnitDefaulted)
	assert.True(t, it.Rate.Equal(decimal.RequireFromString("45.50")), "rate = %s", it.Rate)
	require.NotNil(t, it.Quantity)
	assert.True(t, it.Quantity.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "INR", it.Currency)
	assert.InDelta(t, 0.93, it.Confidence, 1e-9)

	assert.Greater(t, res.Confidence, 0.8)
	assert.InDelta(t, 0.965, res.Confidence, 1e-9)

	require.NotNil(t, res.Client)
	assert.Equal(t, "ravi@steelplant.in", res.Client.Email)
	assert.Equal(t, "Ravi Kumar", res.Client.Name)
}

func TestStructuredExtractor_NRowsGiveNItems(t *testing.T) {
	e := newTestStructured()

	for _, n := range []int{1, 2, 5, 12} {
		t.Run(fmt.Sprintf("%d rows", n), func(t *testing.T) {
			var sb strings.Builder
			sb.WriteString("<table><tr><td>Item Description</td><td>Quantity</td><td>UOM</td><td>Unit Price</td><td>HSN Code</td></tr>")
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, "<tr><td>HIGH ALUMINA BRICK %d</td><td>%d</td><td>MT</td><td>%d,500.00</td><td>6902 20</td></tr>", i, 10+i, 30+i)
			}
			sb.WriteString("</table>")

			res := e.Extract(sb.String(), Envelope{})
			require.True(t, res.Success, res.Reason)
			require.Len(t, res.Items, n)
			for i, it := range res.Items {
				assert.Equal(t, fmt.Sprintf("HIGH ALUMINA BRICK %d", i), it.MaterialText)
				assert.Equal(t, "690220", it.TaxCode)
				assert.True(t, it.Rate.Equal(decimal.NewFromInt(int64(30+i)*1000+500)))
			}
			if n > 3 {
				assert.LessOrEqual(t, res.Confidence, 1.0)
			}
		})
	}
}

func TestStructuredExtractor_Failures(t *testing.T) {
	e := newTestStructured()

	tests := []struct {
		name           string
		body           string
		wantConfidence float64
		wantReason     string
	}{
		{
			name:       "empty body",
			body:       "  ",
			wantReason: ReasonNoHTML,
		},
		{
			name:       "no table",
			body:       "<html><body><p>Please send your best rate for fire bricks.</p></body></html>",
			wantReason: ReasonNoTable,
		},
		{
			name:       "table without header keywords",
			body:       "<table><tr><td>Name</td><td>Phone</td></tr><tr><td>Ravi</td><td>98450</td></tr></table>",
			wantReason: ReasonNoTable,
		},
		{
			name:           "table without rate column",
			body:           "<table><tr><th>Description</th><th>Qty</th></tr><tr><td>Mortar</td><td>5</td></tr></table>",
			wantConfidence: 0.3,
			wantReason:     ReasonMissingColumns,
		},
		{
			name:       "rows without rates",
			body:       "<table><tr><th>Description</th><th>Rate</th></tr><tr><td>Mortar</td><td>on request</td></tr><tr><td>Castable</td><td>0</td></tr></table>",
			wantReason: ReasonNoItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Extract(tt.body, Envelope{})
			assert.False(t, res.Success)
			assert.Empty(t, res.Items)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.InDelta(t, tt.wantConfidence, res.Confidence, 1e-9)
		})
	}
}

func TestStructuredExtractor_Deterministic(t *testing.T) {
	e := newTestStructured()
	body := `<table>
<tr><th>Particulars</th><th>Qty</th><th>Unit</th><th>Basic Rate</th><th>Delivery Location</th></tr>
<tr><td>LC CASTABLE 60%</td><td>20</td><td>bags</td><td>Rs. 1,250.00/-</td><td>Bhilai</td></tr>
<tr><td>INSULATION BRICK</td><td>1000</td><td>pcs</td><td>38</td><td>Bhilai</td></tr>
</table>`

	first := e.Extract(body, Envelope{From: "purchase@bhilai-steel.com"})
	second := e.Extract(body, Envelope{From: "purchase@bhilai-steel.com"})

	assert.Equal(t, first, second)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "BAG", first.Items[0].Unit)
	assert.Equal(t, "NOS", first.Items[1].Unit)
	assert.Equal(t, "Bhilai", first.Items[0].DeliveryLocation)
}

func TestStructuredExtractor_PicksQuotationTable(t *testing.T) {
	e := newTestStructured()
	body := `
<table><tr><td>Our Ref</td><td>Q-123</td></tr></table>
<table><tr><td>
  <table>
    <tr><th>Item</th><th>Price</th><th>Unit</th></tr>
    <tr><td>Ramming Mass</td><td>$45</td><td>kgs</td></tr>
  </table>
</td></tr></table>`

	res := e.Extract(body, Envelope{})

	require.True(t, res.Success, res.Reason)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Ramming Mass", res.Items[0].MaterialText)
	assert.Equal(t, "USD", res.Items[0].Currency)
	assert.Equal(t, "KG", res.Items[0].Unit)
}

func TestStructuredExtractor_UnknownUnitLowersConfidence(t *testing.T) {
	e := newTestStructured()
	row := func(unit string) string {
		return `<table><tr><th>Description</th><th>Qty</th><th>Unit</th><th>Rate</th></tr>
<tr><td>GUNNING MASS</td><td>4</td><td>` + unit + `</td><td>900</td></tr></table>`
	}

	known := e.Extract(row("MT"), Envelope{})
	unknown := e.Extract(row("drums"), Envelope{})

	require.Len(t, known.Items, 1)
	require.Len(t, unknown.Items, 1)
	assert.Equal(t, DefaultUnit, unknown.Items[0].Unit)
	assert.True(t, unknown.Items[0].UnitDefaulted)
	assert.Less(t, unknown.Items[0].Confidence, known.Items[0].Confidence)
	assert.Less(t, unknown.Confidence, known.Confidence)
}

func TestStructuredExtractor_HeaderAfterTitleRow(t *testing.T) {
	e := newTestStructured()
	body := `<table>
<tr><td colspan="4">QUOTATION FOR REFRACTORY MATERIALS</td></tr>
<tr><td>Description of Goods</td><td>Quantity</td><td>Total Amount</td><td>Unit Rate</td></tr>
<tr><td>Mortar</td><td>2 MT</td><td>20000</td><td>10000</td></tr>
</table>`

	res := e.Extract(body, Envelope{})

	require.True(t, res.Success, res.Reason)
	require.Len(t, res.Items, 1)
	it := res.Items[0]
	assert.True(t, it.Rate.Equal(decimal.NewFromInt(10000)), "total column must not be read as rate")
	assert.Equal(t, "MT", it.Unit)
	assert.False(t, it.UnitDefaulted)
}

func TestIdentityFromEnvelope(t *testing.T) {
	r := newIdentityResolver(vocab.Default(), []string{"acme-refractories.com"})

	tests := []struct {
		name      string
		env       Envelope
		wantNil   bool
		wantEmail string
		wantName  string
	}{
		{
			name:      "external sender with display name",
			env:       Envelope{From: "Ravi Kumar <Ravi@SteelPlant.in>"},
			wantEmail: "ravi@steelplant.in",
			wantName:  "Ravi Kumar",
		},
		{
			name:      "company domain without display name",
			env:       Envelope{From: "purchase@jsw-steel.com"},
			wantEmail: "purchase@jsw-steel.com",
			wantName:  "JSW STEEL",
		},
		{
			name:      "webmail without display name",
			env:       Envelope{From: "rk.traders@gmail.com"},
			wantEmail: "rk.traders@gmail.com",
			wantName:  "rk.traders",
		},
		{
			name: "outgoing quotation uses first external recipient",
			env: Envelope{
				From: "Sales <sales@acme-refractories.com>",
				To:   []string{"manager@acme-refractories.com, Stores <stores@vizag-steel.com>"},
			},
			wantEmail: "stores@vizag-steel.com",
			wantName:  "Stores",
		},
		{
			name:    "internal mail only",
			env:     Envelope{From: "a@acme-refractories.com", To: []string{"b@acme-refractories.com"}},
			wantNil: true,
		},
		{
			name:    "no sender",
			env:     Envelope{},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := r.client(tt.env)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.wantEmail, c.Email)
			assert.Equal(t, tt.wantName, c.Name)
		})
	}
}
