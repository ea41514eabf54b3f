// Package extract owns the fallback chain: it walks the configured methods in
// order, cheapest first, until one clears the confidence threshold or the
// per-document cost cap is reached.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/pagetext"
)

const rawSnippetLen = 500

// Attempt is one method invocation against one document.
type Attempt struct {
	Method     string                   `json:"method"`
	Outcome    constants.AttemptOutcome `json:"outcome"`
	Success    bool                     `json:"success"`
	Confidence float64                  `json:"confidence"`
	Cost       float64                  `json:"cost"`
	TokensUsed int64                    `json:"tokens_used,omitempty"`
	ParseKind  llm.ParseKind            `json:"parse_kind,omitempty"`
	Error      string                   `json:"error,omitempty"`
	RawSnippet string                   `json:"raw_snippet,omitempty"`
	Latency    time.Duration            `json:"latency"`
}

// Result is always returned, whether or not any method produced a record.
type Result struct {
	RequestID  string                    `json:"request_id"`
	Success    bool                      `json:"success"`
	Invoice    *entity.ExtractedInvoice  `json:"invoice,omitempty"`
	Invoices   []entity.ExtractedInvoice `json:"invoices,omitempty"`
	Confidence float64                   `json:"confidence"`
	TotalCost  float64                   `json:"total_cost"`
	Attempts   []Attempt                 `json:"attempts"`
	Strategy   string                    `json:"strategy,omitempty"`
	Halt       constants.HaltReason      `json:"halt"`
	Skipped    []string                  `json:"skipped,omitempty"` // methods never reached
}

// Err summarizes why a result carries no accepted record. It is nil when the
// threshold was met.
func (r Result) Err() error {
	switch r.Halt {
	case constants.HaltAccepted:
		return nil
	case constants.HaltCostCap:
		return fmt.Errorf("%w: spent $%.4f, skipped %v", common.ErrCostCapExceeded, r.TotalCost, r.Skipped)
	case constants.HaltCancelled:
		return context.Canceled
	}
	if r.Success {
		return nil
	}
	if n := len(r.Attempts); n > 0 {
		last := r.Attempts[n-1]
		return fmt.Errorf("all %d methods failed, last %s: %s", n, last.Method, last.Error)
	}
	return errors.New("no method ran")
}

// Orchestrator runs a fixed chain of adapters. It holds no per-document state and is
// safe for concurrent use.
type Orchestrator struct {
	chain     []string
	methods   map[string]llm.Adapter
	costCap   float64
	threshold float64
	workers   int
	logger    *slog.Logger
}

// New validates the chain against the available methods. It is the only place the
// package returns an error.
func New(cfg common.ExtractionConfig, methods map[string]llm.Adapter, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Chain) == 0 {
		return nil, common.NewAppError("CONFIG_ERROR", "extraction chain is empty", common.ErrNoMethods)
	}
	seen := make(map[string]bool, len(cfg.Chain))
	for _, name := range cfg.Chain {
		if _, ok := methods[name]; !ok {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("chain method %q is not configured", name), common.ErrNoMethods)
		}
		if seen[name] {
			return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("chain method %q listed twice", name), common.ErrInvalidInput)
		}
		seen[name] = true
	}

	costCap := cfg.CostCapUSD
	if costCap <= 0 {
		costCap = math.Inf(1)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		chain:     append([]string(nil), cfg.Chain...),
		methods:   methods,
		costCap:   costCap,
		threshold: cfg.ConfidenceThreshold,
		workers:   workers,
		logger:    logger,
	}, nil
}

// Chain returns the method names in the order they are tried.
func (o *Orchestrator) Chain() []string {
	return append([]string(nil), o.chain...)
}

// ExtractPage is Extract for a single page of text.
func (o *Orchestrator) ExtractPage(ctx context.Context, text string, page int, hints llm.Hints) Result {
	return o.Extract(ctx, llm.ExtractRequest{Text: text, PageNumber: page, Hints: hints})
}

// Extract walks the chain sequentially. A method is skipped once the spend so far
// has reached the cap; the first record at or above the threshold is returned
// immediately; otherwise the highest-confidence record seen is kept.
func (o *Orchestrator) Extract(ctx context.Context, req llm.ExtractRequest) Result {
	return o.ExtractWithBudget(ctx, req, 0)
}

// ExtractWithBudget is Extract for one page of a larger document. spent is what
// earlier pages of the same document already cost; it counts against the cap, so
// once the document has spent the cap no further method runs. Result.TotalCost
// covers this call only.
func (o *Orchestrator) ExtractWithBudget(ctx context.Context, req llm.ExtractRequest, spent float64) Result {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()
	res := Result{RequestID: rid, Halt: constants.HaltExhausted}

	o.logger.Info("orchestrator.start",
		"req_id", rid,
		"doc_id", common.DocumentIDFromContext(ctx),
		"page", req.PageNumber,
		"chain", o.chain,
		"cost_cap", o.costCap,
		"spent_before", spent,
		"threshold", o.threshold,
	)

	var best *llm.Reply
	var bestMethod string

	for i, name := range o.chain {
		if ctx.Err() != nil {
			res.Halt = constants.HaltCancelled
			res.Skipped = append([]string(nil), o.chain[i:]...)
			break
		}
		if spent+res.TotalCost >= o.costCap {
			res.Halt = constants.HaltCostCap
			res.Skipped = append([]string(nil), o.chain[i:]...)
			o.logger.Warn("orchestrator.cost_cap",
				"req_id", rid, "spent", spent+res.TotalCost, "cap", o.costCap, "skipped", res.Skipped)
			break
		}

		reply, err := o.methods[name].Call(ctx, req)
		att := Attempt{
			Method:     name,
			Cost:       reply.Cost,
			TokensUsed: reply.TokensUsed,
			ParseKind:  reply.ParseKind,
			Latency:    reply.Latency,
		}
		res.TotalCost += reply.Cost

		switch {
		case err != nil:
			att.Outcome = outcomeOf(err)
			att.Error = err.Error()
			if att.Outcome == constants.OutcomeMalformed {
				att.RawSnippet, _ = pagetext.Truncate(reply.Raw, rawSnippetLen)
			}
		case len(reply.Invoices) == 0:
			att.Outcome = constants.OutcomeMalformed
			att.Error = "method returned no records"
		default:
			att.Success = true
			att.Confidence = reply.Confidence
			att.Outcome = constants.OutcomeBelowThreshold
			if reply.Confidence >= o.threshold {
				att.Outcome = constants.OutcomeAccepted
			}
		}
		res.Attempts = append(res.Attempts, att)

		o.logger.Info("orchestrator.attempt",
			"req_id", rid,
			"method", name,
			"outcome", att.Outcome,
			"confidence", att.Confidence,
			"cost", att.Cost,
			"total_cost", res.TotalCost,
			"elapsed_ms", att.Latency.Milliseconds(),
		)

		if !att.Success {
			continue
		}
		if att.Outcome == constants.OutcomeAccepted {
			r := reply
			best, bestMethod = &r, name
			res.Halt = constants.HaltAccepted
			res.Skipped = append([]string(nil), o.chain[i+1:]...)
			break
		}
		if best == nil || reply.Confidence > best.Confidence {
			r := reply
			best, bestMethod = &r, name
		}
	}

	if res.Halt == constants.HaltExhausted && ctx.Err() != nil {
		res.Halt = constants.HaltCancelled
	}
	if best != nil {
		res.Success = true
		res.Invoices = best.Invoices
		res.Invoice = best.Invoice()
		res.Confidence = best.Confidence
		res.Strategy = bestMethod
	}
	if len(res.Skipped) == 0 {
		res.Skipped = nil
	}

	o.logger.Info("orchestrator.done",
		"req_id", rid,
		"success", res.Success,
		"strategy", res.Strategy,
		"halt", res.Halt,
		"attempts", len(res.Attempts),
		"confidence", res.Confidence,
		"total_cost", res.TotalCost,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func outcomeOf(err error) constants.AttemptOutcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return constants.OutcomeCancelled
	case errors.Is(err, common.ErrRateLimited):
		return constants.OutcomeRateLimited
	case errors.Is(err, common.ErrTransport):
		return constants.OutcomeTransport
	case errors.Is(err, common.ErrMalformedResponse):
		return constants.OutcomeMalformed
	default:
		return constants.OutcomeFailed
	}
}
