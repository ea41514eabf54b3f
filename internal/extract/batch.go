package extract

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
)

// Document is one unit of batch work.
type Document struct {
	ID      string
	Request llm.ExtractRequest
}

// BatchResult pairs a document id with its extraction result.
type BatchResult struct {
	DocumentID string `json:"document_id"`
	Result     Result `json:"result"`
}

// Batch extracts documents concurrently with at most the configured number of
// workers. Results come back in input order. Once ctx is cancelled, documents that
// have not started return immediately with a cancelled halt and no attempts.
func (o *Orchestrator) Batch(ctx context.Context, docs []Document) []BatchResult {
	out := make([]BatchResult, len(docs))
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(o.workers)
	for i, d := range docs {
		g.Go(func() error {
			dctx := common.WithDocumentID(ctx, d.ID)
			out[i] = BatchResult{DocumentID: d.ID, Result: o.Extract(dctx, d.Request)}
			return nil
		})
	}
	_ = g.Wait()

	var ok int
	var spent float64
	for _, r := range out {
		if r.Result.Success {
			ok++
		}
		spent += r.Result.TotalCost
	}
	o.logger.Info("orchestrator.batch.done",
		"documents", len(docs),
		"succeeded", ok,
		"workers", o.workers,
		"total_cost", spent,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}
