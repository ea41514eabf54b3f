package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/matching"
)

// MatchStage matches every extracted line against the document's catalog and
// evaluates the result for approval.
type MatchStage struct {
	engine *matching.Engine
	gate   *approval.Gate
	logger *slog.Logger
}

// Run matches invoices in extraction order. Line ids repeated across records of
// the same page are made unique before matching so candidates stay addressable.
func (s *MatchStage) Run(ctx context.Context, doc Document, invoices []entity.ExtractedInvoice) ([]entity.MatchCandidate, approval.Decision) {
	seen := map[string]bool{}
	var cands []entity.MatchCandidate
	for n, inv := range invoices {
		items := uniqueLineIDs(inv, n, seen)
		if len(items) == 0 {
			continue
		}
		supplier := strings.TrimSpace(doc.Hints.SupplierName)
		if supplier == "" {
			supplier = inv.VendorName
		}
		got := s.engine.Match(ctx, matching.Input{
			SupplierName: supplier,
			LineItems:    items,
			Catalog:      doc.Catalog,
			Existing:     doc.Existing,
		})
		s.logger.Info("processor.match.ok",
			"doc_id", doc.ID,
			"invoice", inv.InvoiceNumber,
			"page", inv.PageNumber,
			"supplier", supplier,
			"lines", len(items),
		)
		cands = append(cands, got...)
	}
	return cands, s.gate.Evaluate(cands)
}

func uniqueLineIDs(inv entity.ExtractedInvoice, n int, seen map[string]bool) []entity.LineItem {
	items := make([]entity.LineItem, 0, len(inv.LineItems))
	for i, li := range inv.LineItems {
		if li.ID == "" {
			li.ID = fmt.Sprintf("p%d-l%d", inv.PageNumber, i+1)
		}
		if seen[li.ID] {
			li.ID = fmt.Sprintf("p%d-r%d-l%d", inv.PageNumber, n+1, i+1)
		}
		seen[li.ID] = true
		items = append(items, li)
	}
	return items
}
