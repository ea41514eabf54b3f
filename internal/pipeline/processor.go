// Package pipeline runs one document end to end: per-page extraction through the
// fallback chain, matching of every extracted line against the estimate catalog,
// and the approval check.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/extract"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/matching"
)

// Document is what the ingestion collaborator hands over: rendered page text and,
// optionally, the original bytes.
type Document struct {
	ID                  string                  `json:"id"`
	Pages               []string                `json:"pages"`
	Attachment          []byte                  `json:"-"`
	AttachmentMediaType string                  `json:"attachment_media_type,omitempty"`
	AttachmentName      string                  `json:"attachment_name,omitempty"`
	Hints               llm.Hints               `json:"hints"`
	Catalog             []entity.TargetLineItem `json:"catalog"`
	Existing            []entity.Correspondence `json:"existing,omitempty"`
}

// Report is the outcome for one document. NeedsManualEntry is set when no page
// produced a record.
type Report struct {
	DocumentID       string                    `json:"document_id"`
	Pages            []extract.Result          `json:"pages"`
	Invoices         []entity.ExtractedInvoice `json:"invoices"`
	Candidates       []entity.MatchCandidate   `json:"candidates"`
	Decision         approval.Decision         `json:"decision"`
	TotalCost        float64                   `json:"total_cost"`
	NeedsManualEntry bool                      `json:"needs_manual_entry"`
}

// Processor coordinates extraction then matching.
type Processor struct {
	logger  *slog.Logger
	extract *ExtractStage
	match   *MatchStage
}

func NewProcessor(logger *slog.Logger, orch *extract.Orchestrator, engine *matching.Engine, gate *approval.Gate) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:  logger,
		extract: &ExtractStage{orch: orch, logger: logger},
		match:   &MatchStage{engine: engine, gate: gate, logger: logger},
	}
}

// ProcessDocument never fails: extraction and matching problems are reported in
// the Report for manual follow-up.
func (p *Processor) ProcessDocument(ctx context.Context, doc Document) Report {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	ctx = common.WithDocumentID(ctx, doc.ID)
	start := time.Now()

	rep := Report{DocumentID: doc.ID}
	rep.Pages, rep.Invoices, rep.TotalCost = p.extract.Run(ctx, doc)
	if len(rep.Invoices) == 0 {
		rep.NeedsManualEntry = true
		p.logger.Warn("processor.extract.empty", "doc_id", doc.ID, "pages", len(rep.Pages), "total_cost", rep.TotalCost)
	} else {
		p.logger.Info("processor.extract.ok", "doc_id", doc.ID, "invoices", len(rep.Invoices), "total_cost", rep.TotalCost)
	}

	rep.Candidates, rep.Decision = p.match.Run(ctx, doc, rep.Invoices)
	p.logger.Info("processor.done",
		"doc_id", doc.ID,
		"candidates", len(rep.Candidates),
		"approvable", rep.Decision.Approvable,
		"blockers", len(rep.Decision.Blockers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rep
}
