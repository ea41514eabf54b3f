package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: "$1,234.56", want: 1234.56, ok: true},
		{in: "1.234,56", want: 1234.56, ok: true},
		{in: "AUD 12,50", want: 12.50, ok: true},
		{in: "12,500", want: 12500, ok: true},
		{in: "1.234.567", want: 1234567, ok: true},
		{in: "(45.00)", want: -45, ok: true},
		{in: "-7.125", want: -7.13, ok: true},
		{in: 99.999, want: 100, ok: true},
		{in: "", ok: false},
		{in: "n/a", ok: false},
		{in: nil, ok: false},
		{in: true, ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseMoney(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %v", tt.in)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in    string
		order DateOrder
		want  string
		ok    bool
	}{
		{in: "2026-03-04", want: "2026-03-04", ok: true},
		{in: "03/04/2026", want: "2026-03-04", ok: true},
		{in: "03/04/2026", order: DateOrderDMY, want: "2026-04-03", ok: true},
		{in: "25/12/2026", want: "2026-12-25", ok: true},
		{in: "12-03-26", want: "2026-12-03", ok: true},
		{in: "4 Mar 2026", want: "2026-03-04", ok: true},
		{in: "March 4th, 2026", want: "2026-03-04", ok: true},
		{in: "2026-03-04T10:30:00Z", want: "2026-03-04", ok: true},
		{in: "31/02/2026", ok: false},
		{in: "soon", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.in, tt.order)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func ptr(f float64) *float64 { return &f }

func TestApplyTotalsPenalty(t *testing.T) {
	consistent := entity.ExtractedInvoice{Amount: ptr(100), Tax: ptr(15), Total: ptr(115), Confidence: 0.9}
	inconsistent := entity.ExtractedInvoice{Amount: ptr(100), Tax: ptr(15), Total: ptr(200), Confidence: 0.9}

	assert.False(t, ApplyTotalsPenalty(&consistent))
	assert.True(t, ApplyTotalsPenalty(&inconsistent))
	assert.InDelta(t, consistent.Confidence*0.8, inconsistent.Confidence, 1e-9)

	t.Run("floored at 0.3", func(t *testing.T) {
		inv := entity.ExtractedInvoice{Amount: ptr(100), Tax: ptr(15), Total: ptr(200), Confidence: 0.35}
		ApplyTotalsPenalty(&inv)
		assert.InDelta(t, 0.3, inv.Confidence, 1e-9)
	})

	t.Run("never raises confidence", func(t *testing.T) {
		inv := entity.ExtractedInvoice{Amount: ptr(100), Tax: ptr(15), Total: ptr(200), Confidence: 0.2}
		ApplyTotalsPenalty(&inv)
		assert.InDelta(t, 0.2, inv.Confidence, 1e-9)
	})

	t.Run("within fifty cents", func(t *testing.T) {
		inv := entity.ExtractedInvoice{Amount: ptr(100), Tax: ptr(15), Total: ptr(115.5), Confidence: 0.9}
		assert.False(t, ApplyTotalsPenalty(&inv))
		assert.InDelta(t, 0.9, inv.Confidence, 1e-9)
	})

	t.Run("missing tax", func(t *testing.T) {
		inv := entity.ExtractedInvoice{Amount: ptr(100), Total: ptr(200), Confidence: 0.9}
		assert.False(t, ApplyTotalsPenalty(&inv))
	})
}

func TestNormalizeRecord(t *testing.T) {
	rec := map[string]any{
		"vendor_name": "Acme Concrete",
		"issue_date":  "March 4, 2026",
		"amount":      "$1,234.56",
		"tax":         "$123.46",
		"total":       "$1,358.02",
		"line_items": []any{
			map[string]any{"description": "Concrete pour 50m3", "quantity": "2", "total": "$1,234.56"},
			map[string]any{"description": "", "total": 5.0},
			map[string]any{"description": "Freebie", "total": 0.0},
			map[string]any{"description": "Pump hire", "unit_price": "300"},
		},
		"confidence": 1.4,
	}

	inv := NormalizeRecord(rec, NormalizeOptions{PageNumber: 2, RawText: "raw"})
	assert.Equal(t, "2026-03-04", inv.IssueDate)
	require.NotNil(t, inv.Amount)
	assert.InDelta(t, 1234.56, *inv.Amount, 1e-9)
	assert.InDelta(t, 1358.02, *inv.Total, 1e-9)
	assert.Equal(t, 2, inv.PageNumber)
	assert.Equal(t, "raw", inv.RawText)
	assert.InDelta(t, 1.0, inv.Confidence, 1e-9)

	require.Len(t, inv.LineItems, 1)
	li := inv.LineItems[0]
	assert.Equal(t, "Concrete pour 50m3", li.Description)
	assert.InDelta(t, 2.0, li.Quantity, 1e-9)
	assert.InDelta(t, 0.0, li.UnitPrice, 1e-9)
	assert.Equal(t, "p2-l1", li.ID)
}

func TestNormalizeRecord_DefaultsAndCompleteness(t *testing.T) {
	rec := map[string]any{
		"vendor_name": "Acme",
		"line_items":  []any{map[string]any{"description": "Rebar", "total": "80"}},
	}
	inv := NormalizeRecord(rec, NormalizeOptions{})
	require.Len(t, inv.LineItems, 1)
	assert.InDelta(t, 1.0, inv.LineItems[0].Quantity, 1e-9)
	// vendor + line items out of five signals
	assert.InDelta(t, 0.4, inv.Confidence, 1e-9)
}

func TestNormalizeRecord_ConfidenceScale(t *testing.T) {
	inv := NormalizeRecord(map[string]any{"total": 10.0, "confidence": 0.9}, NormalizeOptions{ConfidenceScale: RecoveredParseFactor})
	assert.InDelta(t, 0.81, inv.Confidence, 1e-9)
}
