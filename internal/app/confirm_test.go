package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/patterns"
)

var confirmCatalog = []entity.TargetLineItem{
	{ID: "t-1", Description: "Concrete pour", TradeID: "trade-concrete", Material: 9000, Labor: 3000},
	{ID: "t-2", Description: "Pump hire", TradeID: "trade-concrete", Equipment: 600},
}

func target(s string) *string { return &s }

func newApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), common.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func hits(t *testing.T, a *App, description string) int {
	t.Helper()
	got, err := a.Patterns.Lookup(context.Background(), "Acme Concrete", patterns.Signature(description), 0)
	require.NoError(t, err)
	n := 0
	for _, p := range got {
		n += p.HitCount
	}
	return n
}

func TestConfirm_ItemsWithoutIDs(t *testing.T) {
	a := newApp(t)
	items := []entity.LineItem{
		{Description: "Concrete pour", Quantity: 1, Total: 12500},
		{Description: "Pump hire", Quantity: 2, Total: 600},
	}
	cands := []entity.MatchCandidate{
		{InvoiceLineItemID: "line-1", TargetLineItemID: target("t-1"), Status: constants.MatchStatusSuggested, Confidence: 0.9},
		{InvoiceLineItemID: "line-2", TargetLineItemID: target("t-2"), Status: constants.MatchStatusSuggested, Confidence: 0.9},
	}

	out, err := a.Confirm(context.Background(), ConfirmRequest{
		SupplierName: "Acme Concrete", LineItems: items, Candidates: cands, Catalog: confirmCatalog,
		At: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, out.Recorded, 2)
	assert.Empty(t, out.Skipped)
	assert.Equal(t, "line-1", out.Recorded[0].InvoiceLineItemID)
	assert.Equal(t, "trade-concrete", out.Recorded[0].TradeID)
	assert.Equal(t, 1, hits(t, a, "Concrete pour"))
	assert.Equal(t, 1, hits(t, a, "Pump hire"))
}

func TestConfirm_ExistingNotRecordedAgain(t *testing.T) {
	a := newApp(t)
	items := []entity.LineItem{
		{ID: "a", Description: "Concrete pour", Total: 12500},
		{ID: "b", Description: "Pump hire", Total: 600},
	}
	cands := []entity.MatchCandidate{
		{InvoiceLineItemID: "a", TargetLineItemID: target("t-1"), Status: constants.MatchStatusExisting, Confidence: 1},
		{InvoiceLineItemID: "b", TargetLineItemID: target("t-2"), Status: constants.MatchStatusSuggested, Confidence: 0.9},
	}

	out, err := a.Confirm(context.Background(), ConfirmRequest{SupplierName: "Acme Concrete", LineItems: items, Candidates: cands, Catalog: confirmCatalog})
	require.NoError(t, err)
	require.Len(t, out.Recorded, 1)
	assert.Equal(t, "b", out.Recorded[0].InvoiceLineItemID)
	assert.Zero(t, hits(t, a, "Concrete pour"))
	assert.Equal(t, 1, hits(t, a, "Pump hire"))
}

func TestConfirm_BlockedSet(t *testing.T) {
	items := []entity.LineItem{
		{ID: "a", Description: "Concrete pour", Total: 12500},
		{ID: "b", Description: "Mystery fee", Total: 50},
	}
	cands := []entity.MatchCandidate{
		{InvoiceLineItemID: "a", TargetLineItemID: target("t-1"), Status: constants.MatchStatusSuggested, Confidence: 0.9},
		{InvoiceLineItemID: "b", Status: constants.MatchStatusUnmatched, Reason: "no estimate line scored above the floor"},
	}
	req := ConfirmRequest{SupplierName: "Acme Concrete", LineItems: items, Candidates: cands, Catalog: confirmCatalog}

	a := newApp(t)
	_, err := a.Confirm(context.Background(), req)
	require.ErrorIs(t, err, approval.ErrBlocked)
	assert.Zero(t, hits(t, a, "Concrete pour"))

	req.Partial = true
	out, err := a.Confirm(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Recorded, 1)
	assert.Equal(t, "a", out.Recorded[0].InvoiceLineItemID)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "b", out.Skipped[0].InvoiceLineItemID)
	assert.Equal(t, 1, hits(t, a, "Concrete pour"))
}

func TestConfirm_RequiresSupplier(t *testing.T) {
	a := newApp(t)
	_, err := a.Confirm(context.Background(), ConfirmRequest{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
