// Package patterns is the durable memory of confirmed correspondences. A pattern
// links a supplier and a description signature to a trade and, optionally, a
// specific catalog line. Patterns are only ever strengthened or joined by
// competitors; a conflicting confirmation never rewrites an existing one.
package patterns

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

// Store is the lookup/record contract the matching engine and its callers use.
type Store interface {
	// Lookup returns the patterns for (supplier, signature), best first. An empty
	// result is not an error.
	Lookup(ctx context.Context, supplierName, signature string, amount float64) ([]entity.Pattern, error)
	// Record persists one confirmed correspondence.
	Record(ctx context.Context, c Confirmation) error
}

// Confirmation is a pattern write request, emitted when a caller confirms a
// suggested or manual correspondence.
type Confirmation struct {
	SupplierName     string    `json:"supplier_name"`
	Description      string    `json:"description,omitempty"`
	Signature        string    `json:"signature,omitempty"` // derived from Description when empty
	Amount           float64   `json:"amount"`
	TradeID          string    `json:"trade_id"`
	TargetLineItemID *string   `json:"target_line_item_id,omitempty"`
	ConfirmedAt      time.Time `json:"confirmed_at,omitempty"`
}

// normalize fills derived fields and rejects confirmations that cannot key a pattern.
func (c Confirmation) normalize(now time.Time) (Confirmation, string, error) {
	c.SupplierName = strings.TrimSpace(c.SupplierName)
	c.TradeID = strings.TrimSpace(c.TradeID)
	if c.Signature == "" {
		c.Signature = Signature(c.Description)
	}
	if c.TargetLineItemID != nil && strings.TrimSpace(*c.TargetLineItemID) == "" {
		c.TargetLineItemID = nil
	}
	if c.ConfirmedAt.IsZero() {
		c.ConfirmedAt = now
	}

	v := common.NewValidator()
	v.Field("supplier_name", c.SupplierName, common.Required)
	v.Field("signature", c.Signature, common.Required)
	v.Field("trade_id", c.TradeID, common.Required)
	v.Field("amount", c.Amount, common.NonNegative)
	if err := common.ValidateAndReturnError(v); err != nil {
		return c, "", fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	key := SupplierKey(c.SupplierName)
	if key == "" {
		return c, "", fmt.Errorf("%w: supplier name %q has no usable words", common.ErrInvalidInput, c.SupplierName)
	}
	return c, key, nil
}

// rank computes each pattern's share of the key's confirmations and orders the set:
// accuracy, then hit count, then closeness of the typical amount to amount, then
// most recent confirmation, then id.
func rank(ps []entity.Pattern, amount float64) []entity.Pattern {
	var total int
	for _, p := range ps {
		total += p.HitCount
	}
	for i := range ps {
		if total > 0 {
			ps[i].Accuracy = float64(ps[i].HitCount) / float64(total)
		}
	}
	slices.SortStableFunc(ps, func(a, b entity.Pattern) int {
		switch {
		case a.Accuracy != b.Accuracy:
			return cmpDesc(a.Accuracy, b.Accuracy)
		case a.HitCount != b.HitCount:
			return b.HitCount - a.HitCount
		}
		if amount > 0 {
			da, db := amountGap(a.AvgAmount, amount), amountGap(b.AvgAmount, amount)
			if da != db {
				return cmpDesc(db, da)
			}
		}
		if !a.LastConfirmedAt.Equal(b.LastConfirmedAt) {
			return b.LastConfirmedAt.Compare(a.LastConfirmedAt)
		}
		return int(a.ID - b.ID)
	})
	return ps
}

func amountGap(avg, amount float64) float64 {
	return math.Abs(avg-amount) / math.Max(amount, 1)
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrPatternStoreUnavailable, op, err)
}
