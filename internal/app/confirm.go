package app

import (
	"context"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/matching"
)

// ConfirmRequest is a reviewed match set to be written back as patterns.
type ConfirmRequest struct {
	SupplierName string
	LineItems    []entity.LineItem
	Candidates   []entity.MatchCandidate
	Catalog      []entity.TargetLineItem
	// Partial records the approvable candidates even when others block the set.
	Partial bool
	At      time.Time
}

type ConfirmResult struct {
	Recorded []entity.Correspondence `json:"recorded"`
	Skipped  []approval.Blocker      `json:"skipped,omitempty"`
}

// Confirm records one pattern per approvable candidate and returns the matching
// correspondences. Candidates already pinned as existing are not recorded again.
// A blocked set is refused with approval.ErrBlocked unless Partial is set.
func (a *App) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	if req.SupplierName == "" {
		return ConfirmResult{}, common.NewAppError("INVALID_INPUT", "supplier is required to record patterns", common.ErrInvalidInput)
	}
	decision := a.Gate.Evaluate(req.Candidates)
	if !decision.Approvable && !req.Partial {
		return ConfirmResult{}, a.Gate.Check(req.Candidates)
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	items := matching.LineIDs(req.LineItems)
	byID := make(map[string]entity.LineItem, len(items))
	for _, li := range items {
		byID[li.ID] = li
	}

	out := ConfirmResult{Skipped: decision.Blockers}
	for _, c := range req.Candidates {
		if _, ok := decision.ByItem[c.InvoiceLineItemID]; !ok || c.Status == constants.MatchStatusExisting {
			continue
		}
		item, ok := byID[c.InvoiceLineItemID]
		if !ok {
			out.Skipped = append(out.Skipped, approval.Blocker{InvoiceLineItemID: c.InvoiceLineItemID, Reason: "line item not in request"})
			continue
		}
		conf, err := matching.ConfirmationFor(req.SupplierName, item, c, req.Catalog, at)
		if err != nil {
			out.Skipped = append(out.Skipped, approval.Blocker{InvoiceLineItemID: c.InvoiceLineItemID, Reason: err.Error()})
			continue
		}
		if err := a.Patterns.Record(ctx, conf); err != nil {
			return out, err
		}
		if corr, ok := matching.Correspondence(c, req.Catalog, at); ok {
			out.Recorded = append(out.Recorded, corr)
		}
	}
	a.Logger.Info("confirm.done", "supplier", req.SupplierName, "recorded", len(out.Recorded), "skipped", len(out.Skipped))
	return out, nil
}
