package patterns

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

// MemoryStore keeps patterns in process. It backs tests and single-run CLI use.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64
	rows   []memRow
}

type memRow struct {
	key       string
	pattern   entity.Pattern
	amountSum float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Lookup(ctx context.Context, supplierName, signature string, amount float64) ([]entity.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("lookup", err)
	}
	key := SupplierKey(supplierName)

	s.mu.RLock()
	var out []entity.Pattern
	for _, r := range s.rows {
		if r.key == key && r.pattern.Signature == signature {
			out = append(out, clonePattern(r.pattern))
		}
	}
	s.mu.RUnlock()
	return rank(out, amount), nil
}

func (s *MemoryStore) Record(ctx context.Context, c Confirmation) error {
	if err := ctx.Err(); err != nil {
		return unavailable("record", err)
	}
	c, key, err := c.normalize(s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		r := &s.rows[i]
		if r.key == key && r.pattern.Signature == c.Signature && r.pattern.TradeID == c.TradeID &&
			sameTarget(r.pattern.TargetLineItemID, c.TargetLineItemID) {
			r.pattern.HitCount++
			r.amountSum += c.Amount
			r.pattern.AvgAmount = r.amountSum / float64(r.pattern.HitCount)
			if c.ConfirmedAt.After(r.pattern.LastConfirmedAt) {
				r.pattern.LastConfirmedAt = c.ConfirmedAt
			}
			return nil
		}
	}

	s.nextID++
	s.rows = append(s.rows, memRow{
		key:       key,
		amountSum: c.Amount,
		pattern: entity.Pattern{
			ID:               s.nextID,
			SupplierName:     c.SupplierName,
			Signature:        c.Signature,
			TradeID:          c.TradeID,
			TargetLineItemID: cloneString(c.TargetLineItemID),
			HitCount:         1,
			AvgAmount:        c.Amount,
			LastConfirmedAt:  c.ConfirmedAt,
		},
	})
	return nil
}

func sameTarget(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clonePattern(p entity.Pattern) entity.Pattern {
	p.TargetLineItemID = cloneString(p.TargetLineItemID)
	return p
}
