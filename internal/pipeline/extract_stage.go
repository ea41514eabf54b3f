package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/extract"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/pagetext"
)

// ExtractStage runs the fallback chain once per page.
type ExtractStage struct {
	orch   *extract.Orchestrator
	logger *slog.Logger
}

// Run returns one result per page in page order, the records of every page that
// produced one, and the summed spend. The cost cap is a budget for the whole
// document: each page starts with what earlier pages already spent. A document
// with an attachment and no page text is sent as a single request carrying the
// attachment.
func (s *ExtractStage) Run(ctx context.Context, doc Document) ([]extract.Result, []entity.ExtractedInvoice, float64) {
	reqs := Requests(doc)
	results := make([]extract.Result, 0, len(reqs))
	var invoices []entity.ExtractedInvoice
	var spent float64

	for _, req := range reqs {
		if ctx.Err() != nil {
			s.logger.Warn("processor.extract.cancelled", "doc_id", doc.ID, "page", req.PageNumber)
			break
		}
		res := s.orch.ExtractWithBudget(ctx, req, spent)
		spent += res.TotalCost
		results = append(results, res)
		if !res.Success {
			s.logger.Warn("processor.extract.page_failed", "doc_id", doc.ID, "page", req.PageNumber, "halt", res.Halt, "err", res.Err())
			continue
		}
		invoices = append(invoices, res.Invoices...)
	}
	return results, invoices, spent
}

// Requests builds the extraction requests for doc: one per non-blank page, or a
// single attachment request when there is no page text.
func Requests(doc Document) []llm.ExtractRequest {
	var reqs []llm.ExtractRequest
	for i, page := range doc.Pages {
		if pagetext.Normalize(page) == "" {
			continue
		}
		reqs = append(reqs, llm.ExtractRequest{
			Text:       page,
			PageNumber: i + 1,
			Hints:      doc.Hints,
		})
	}
	if len(reqs) == 0 && len(doc.Attachment) > 0 {
		reqs = append(reqs, llm.ExtractRequest{
			PageNumber:          1,
			Hints:               doc.Hints,
			Attachment:          doc.Attachment,
			AttachmentMediaType: doc.AttachmentMediaType,
			AttachmentName:      doc.AttachmentName,
		})
	}
	return reqs
}
