// Package matching proposes correspondences between extracted invoice lines and a
// catalog of estimate lines. It reads learned patterns but never writes them;
// callers record confirmations through patterns.Store.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/patterns"
)

// Config holds the scoring weights and thresholds.
type Config struct {
	TextWeight            float64
	AmountWeight          float64
	AmountTolerance       float64 // relative, 0.25 = 25%
	RelevanceFloor        float64
	PatternBoost          float64 // added score for a hinted target, scaled by accuracy
	PatternAcceptAccuracy float64 // hints at or above this accuracy may lead the ranking
	PatternMinHits        int
	PatternLookupTimeout  time.Duration
	Alternatives          int
}

func DefaultConfig() Config {
	return ConfigFrom(common.DefaultConfig().Matching)
}

func ConfigFrom(c common.MatchingConfig) Config {
	return Config{
		TextWeight:            c.TextWeight,
		AmountWeight:          c.AmountWeight,
		AmountTolerance:       c.AmountTolerance,
		RelevanceFloor:        c.RelevanceFloor,
		PatternBoost:          c.PatternBoost,
		PatternAcceptAccuracy: c.PatternAcceptAccuracy,
		PatternMinHits:        c.PatternMinHits,
		PatternLookupTimeout:  c.PatternLookupTimeout,
		Alternatives:          c.Alternatives,
	}
}

// Input is everything one matching run depends on besides pattern hints.
type Input struct {
	SupplierName string
	LineItems    []entity.LineItem
	Catalog      []entity.TargetLineItem
	Existing     []entity.Correspondence
}

// Engine is stateless between runs and safe for concurrent use.
type Engine struct {
	cfg    Config
	store  patterns.Store
	logger *slog.Logger
}

// New builds an engine. store may be nil, in which case only geometric scoring runs.
func New(cfg Config, store patterns.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TextWeight+cfg.AmountWeight <= 0 {
		cfg.TextWeight, cfg.AmountWeight = 0.6, 0.4
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = 0.25
	}
	if cfg.Alternatives < 0 {
		cfg.Alternatives = 0
	}
	return &Engine{cfg: cfg, store: store, logger: logger}
}

// recency orders trades by how recently they were matched for this supplier.
// Outcomes earlier in the same run rank above any stored timestamp.
type recency struct {
	seq int
	at  time.Time
}

func (r recency) after(o recency) bool {
	if r.seq != o.seq {
		return r.seq > o.seq
	}
	return r.at.After(o.at)
}

type run struct {
	in       Input
	byID     map[string]int
	existing map[string]entity.Correspondence
	trades   map[string]recency
	seq      int
	degraded bool
}

func (r *run) touch(tradeID string, at time.Time, inRun bool) {
	if tradeID == "" {
		return
	}
	cur := r.trades[tradeID]
	next := recency{seq: cur.seq, at: cur.at}
	if inRun {
		r.seq++
		next.seq = r.seq
	}
	if at.After(next.at) {
		next.at = at
	}
	r.trades[tradeID] = next
}

// LineIDs returns a copy of items where each missing ID is set to line-N, N being
// the 1-based position. Match and confirmation both key items this way.
func LineIDs(items []entity.LineItem) []entity.LineItem {
	out := slices.Clone(items)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("line-%d", i+1)
		}
	}
	return out
}

// Match classifies every line item, in input order. The result has one candidate
// per item. Rerunning with the same inputs and hints gives the same output.
func (e *Engine) Match(ctx context.Context, in Input) []entity.MatchCandidate {
	start := time.Now()
	r := &run{
		in:       in,
		byID:     make(map[string]int, len(in.Catalog)),
		existing: make(map[string]entity.Correspondence, len(in.Existing)),
		trades:   map[string]recency{},
	}
	for i, t := range in.Catalog {
		if _, dup := r.byID[t.ID]; !dup {
			r.byID[t.ID] = i
		}
	}
	for _, c := range in.Existing {
		if _, dup := r.existing[c.InvoiceLineItemID]; dup {
			continue
		}
		r.existing[c.InvoiceLineItemID] = c
		r.touch(e.tradeOf(r, c), c.ConfirmedAt, false)
	}

	out := make([]entity.MatchCandidate, 0, len(in.LineItems))
	counts := map[constants.MatchStatus]int{}
	for _, item := range LineIDs(in.LineItems) {
		cand := e.matchOne(ctx, r, item)
		counts[cand.Status]++
		out = append(out, cand)
	}

	e.logger.Info("matching.done",
		"supplier", in.SupplierName,
		"items", len(in.LineItems),
		"catalog", len(in.Catalog),
		"existing", counts[constants.MatchStatusExisting],
		"suggested", counts[constants.MatchStatusSuggested],
		"unmatched", counts[constants.MatchStatusUnmatched],
		"degraded", r.degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (e *Engine) tradeOf(r *run, c entity.Correspondence) string {
	if c.TradeID != "" {
		return c.TradeID
	}
	if i, ok := r.byID[c.TargetLineItemID]; ok {
		return r.in.Catalog[i].TradeID
	}
	return ""
}

func (e *Engine) matchOne(ctx context.Context, r *run, item entity.LineItem) entity.MatchCandidate {
	if c, ok := r.existing[item.ID]; ok {
		target := c.TargetLineItemID
		r.touch(e.tradeOf(r, c), time.Time{}, true)
		reason := "previously confirmed correspondence"
		if !c.ConfirmedAt.IsZero() {
			reason += " (" + c.ConfirmedAt.UTC().Format("2006-01-02") + ")"
		}
		return entity.MatchCandidate{
			InvoiceLineItemID: item.ID,
			TargetLineItemID:  &target,
			Confidence:        1.0,
			Reason:            reason,
			Status:            constants.MatchStatusExisting,
		}
	}

	if len(r.in.Catalog) == 0 {
		return unmatched(item.ID, fmt.Sprintf("%s: no estimate lines to match %q against", common.ErrCatalogUnavailable, item.Description))
	}

	hints := e.hints(ctx, r, item)
	scored := e.score(r, item, hints)
	e.rankScored(r, scored)

	chosen := 0
	var lead *entity.Pattern
	if p, idx, ok := e.leadingHint(r, hints, scored); ok {
		chosen, lead = idx, p
	}
	best := scored[chosen]

	alts := make([]entity.ScoredTarget, 0, e.cfg.Alternatives)
	for i, s := range scored {
		if len(alts) >= e.cfg.Alternatives {
			break
		}
		if i != chosen {
			alts = append(alts, s.ScoredTarget)
		}
	}

	conf := best.Score
	if lead != nil {
		conf = math.Max(conf, lead.Accuracy)
	}
	if conf < e.cfg.RelevanceFloor {
		c := unmatched(item.ID, e.shortfall(item, best))
		c.Alternatives = append([]entity.ScoredTarget{best.ScoredTarget}, alts...)
		if len(c.Alternatives) > max(e.cfg.Alternatives, 1) {
			c.Alternatives = c.Alternatives[:max(e.cfg.Alternatives, 1)]
		}
		return c
	}

	id := best.TargetLineItemID
	r.touch(best.target.TradeID, time.Time{}, true)
	return entity.MatchCandidate{
		InvoiceLineItemID: item.ID,
		TargetLineItemID:  &id,
		Confidence:        round4(clamp01(conf)),
		Reason:            e.reason(item, best, lead),
		Status:            constants.MatchStatusSuggested,
		Alternatives:      alts,
	}
}

type scoredTarget struct {
	entity.ScoredTarget
	index  int
	target entity.TargetLineItem
	hint   *entity.Pattern
}

func (e *Engine) score(r *run, item entity.LineItem, hints []entity.Pattern) []scoredTarget {
	wt := e.cfg.TextWeight / (e.cfg.TextWeight + e.cfg.AmountWeight)
	wa := 1 - wt

	out := make([]scoredTarget, 0, len(r.in.Catalog))
	for i, t := range r.in.Catalog {
		text := TextSimilarity(item.Description, t.Description)
		if t.TradeName != "" {
			text = math.Max(text, 0.9*TextSimilarity(item.Description, t.TradeName))
		}
		amount := AmountProximity(item.Total, t.Cost(), e.cfg.AmountTolerance)

		var boost float64
		var hint *entity.Pattern
		for k := range hints {
			h := &hints[k]
			var b float64
			switch {
			case h.TargetLineItemID != nil && *h.TargetLineItemID == t.ID:
				b = e.cfg.PatternBoost * h.Accuracy
			case h.TargetLineItemID == nil && h.TradeID == t.TradeID:
				b = e.cfg.PatternBoost * h.Accuracy / 2
			}
			if b > boost {
				boost, hint = b, h
			}
		}

		out = append(out, scoredTarget{
			ScoredTarget: entity.ScoredTarget{
				TargetLineItemID: t.ID,
				Score:            round4(clamp01(wt*text + wa*amount + boost)),
				TextScore:        round4(text),
				AmountScore:      round4(amount),
				PatternBoost:     round4(boost),
			},
			index:  i,
			target: t,
			hint:   hint,
		})
	}
	return out
}

// rankScored sorts by score, then by trade recency for the supplier, then by
// catalog position.
func (e *Engine) rankScored(r *run, s []scoredTarget) {
	slices.SortStableFunc(s, func(a, b scoredTarget) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		ra, rb := r.trades[a.target.TradeID], r.trades[b.target.TradeID]
		switch {
		case ra.after(rb):
			return -1
		case rb.after(ra):
			return 1
		}
		return a.index - b.index
	})
}

// leadingHint returns the top hint when it is strong enough to be suggested ahead
// of the geometric ranking, along with its position in scored.
func (e *Engine) leadingHint(r *run, hints []entity.Pattern, scored []scoredTarget) (*entity.Pattern, int, bool) {
	if len(hints) == 0 || e.cfg.PatternAcceptAccuracy <= 0 {
		return nil, 0, false
	}
	h := hints[0]
	if h.TargetLineItemID == nil || h.Accuracy < e.cfg.PatternAcceptAccuracy || h.HitCount < e.cfg.PatternMinHits {
		return nil, 0, false
	}
	if _, ok := r.byID[*h.TargetLineItemID]; !ok {
		return nil, 0, false
	}
	for i, s := range scored {
		if s.TargetLineItemID == *h.TargetLineItemID {
			return &hints[0], i, true
		}
	}
	return nil, 0, false
}

// hints fetches patterns for the item. A failing store switches the rest of the run
// to geometric scoring.
func (e *Engine) hints(ctx context.Context, r *run, item entity.LineItem) []entity.Pattern {
	if e.store == nil || r.degraded || strings.TrimSpace(r.in.SupplierName) == "" {
		return nil
	}
	sig := patterns.Signature(item.Description)
	if sig == "" {
		return nil
	}

	lctx := ctx
	if e.cfg.PatternLookupTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, e.cfg.PatternLookupTimeout)
		defer cancel()
	}
	ps, err := e.store.Lookup(lctx, r.in.SupplierName, sig, item.Total)
	if err != nil {
		r.degraded = true
		e.logger.Warn("matching.pattern_store_unavailable",
			"supplier", r.in.SupplierName, "signature", sig, "error", err)
		return nil
	}
	for _, p := range ps {
		r.touch(p.TradeID, p.LastConfirmedAt, false)
	}
	return ps
}

func (e *Engine) reason(item entity.LineItem, best scoredTarget, lead *entity.Pattern) string {
	var parts []string
	if lead != nil {
		parts = append(parts, fmt.Sprintf("pattern accepted: %d of %d prior confirmations for this supplier and description chose this line",
			lead.HitCount, totalHits(lead)))
	}
	parts = append(parts, fmt.Sprintf("text similarity %.2f with %q", best.TextScore, best.target.Description))

	est := best.target.Cost()
	switch {
	case best.AmountScore > 0:
		parts = append(parts, fmt.Sprintf("amount %s within %.1f%% of estimate %s",
			money(item.Total), 100*math.Abs(item.Total-est)/est, money(est)))
	case est > 0 && item.Total > 0:
		parts = append(parts, fmt.Sprintf("amount %s outside %.0f%% of estimate %s",
			money(item.Total), 100*e.cfg.AmountTolerance, money(est)))
	default:
		parts = append(parts, "no amount to compare")
	}

	if best.hint != nil && lead == nil {
		kind := "line"
		if best.hint.TargetLineItemID == nil {
			kind = "trade"
		}
		parts = append(parts, fmt.Sprintf("pattern hint (%s, %d confirmations, accuracy %.0f%%)",
			kind, best.hint.HitCount, 100*best.hint.Accuracy))
	}
	return strings.Join(parts, "; ")
}

func (e *Engine) shortfall(item entity.LineItem, best scoredTarget) string {
	below := fmt.Sprintf("best %q scored %.2f, below %.2f", best.target.Description, best.Score, e.cfg.RelevanceFloor)
	if item.Total <= 0 {
		return "line has no amount and no target has similar wording; " + below
	}
	lo := item.Total / (1 + e.cfg.AmountTolerance)
	hi := item.Total / (1 - math.Min(e.cfg.AmountTolerance, 0.99))
	return fmt.Sprintf("no target within %.0f%% of %s (estimates %s to %s) with similar wording; %s",
		100*e.cfg.AmountTolerance, money(item.Total), money(lo), money(hi), below)
}

func unmatched(itemID, reason string) entity.MatchCandidate {
	return entity.MatchCandidate{
		InvoiceLineItemID: itemID,
		Confidence:        0,
		Reason:            reason,
		Status:            constants.MatchStatusUnmatched,
	}
}

// totalHits recovers the key's confirmation count from a pattern's hit share.
func totalHits(p *entity.Pattern) int {
	if p.Accuracy <= 0 {
		return p.HitCount
	}
	return int(math.Round(float64(p.HitCount) / p.Accuracy))
}

func money(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	whole, frac := cents/100, cents%100
	s := fmt.Sprintf("%d", whole)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return fmt.Sprintf("-$%s.%02d", s, frac)
	}
	return fmt.Sprintf("$%s.%02d", s, frac)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
