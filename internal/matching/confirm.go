package matching

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/patterns"
)

// ConfirmationFor builds the pattern write request for an accepted candidate. The
// engine never records it; the caller does, after approval.
func ConfirmationFor(supplier string, item entity.LineItem, cand entity.MatchCandidate, catalog []entity.TargetLineItem, at time.Time) (patterns.Confirmation, error) {
	if cand.TargetLineItemID == nil || *cand.TargetLineItemID == "" {
		return patterns.Confirmation{}, fmt.Errorf("%w: candidate for %s has no target", common.ErrInvalidInput, cand.InvoiceLineItemID)
	}
	if cand.InvoiceLineItemID != "" && item.ID != "" && cand.InvoiceLineItemID != item.ID {
		return patterns.Confirmation{}, fmt.Errorf("%w: candidate is for %s, not %s", common.ErrInvalidInput, cand.InvoiceLineItemID, item.ID)
	}
	targetID := *cand.TargetLineItemID
	for _, t := range catalog {
		if t.ID != targetID {
			continue
		}
		return patterns.Confirmation{
			SupplierName:     supplier,
			Description:      item.Description,
			Signature:        patterns.Signature(item.Description),
			Amount:           item.Total,
			TradeID:          t.TradeID,
			TargetLineItemID: &targetID,
			ConfirmedAt:      at,
		}, nil
	}
	return patterns.Confirmation{}, fmt.Errorf("%w: target %s not in catalog", common.ErrNotFound, targetID)
}

// Correspondence turns a confirmed candidate into the record the estimate system
// stores, so the next run pins it as existing.
func Correspondence(cand entity.MatchCandidate, catalog []entity.TargetLineItem, at time.Time) (entity.Correspondence, bool) {
	if cand.TargetLineItemID == nil || *cand.TargetLineItemID == "" {
		return entity.Correspondence{}, false
	}
	c := entity.Correspondence{
		InvoiceLineItemID: cand.InvoiceLineItemID,
		TargetLineItemID:  *cand.TargetLineItemID,
		ConfirmedAt:       at,
	}
	for _, t := range catalog {
		if t.ID == c.TargetLineItemID {
			c.TradeID = t.TradeID
			break
		}
	}
	return c, true
}
