// Package approval decides whether a document's match set allows the invoice to
// be approved, and sorts suggestions into review bands.
package approval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

var ErrBlocked = errors.New("approval blocked")

// Band is the caller's review policy applied on top of suggested scores.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Bands are the lower bounds of the high and medium bands.
type Bands struct {
	High   float64
	Medium float64
}

func DefaultBands() Bands {
	return Bands{High: 0.85, Medium: 0.6}
}

func (b Bands) Of(confidence float64) Band {
	switch {
	case confidence >= b.High:
		return BandHigh
	case confidence >= b.Medium:
		return BandMedium
	}
	return BandLow
}

// Blocker is one candidate that prevents approval, with the engine's reason.
type Blocker struct {
	InvoiceLineItemID string `json:"invoice_line_item_id"`
	Reason            string `json:"reason"`
}

// Decision summarizes a match set for review.
type Decision struct {
	Approvable bool            `json:"approvable"`
	Blockers   []Blocker       `json:"blockers,omitempty"`
	Bands      map[Band]int    `json:"bands"`
	ByItem     map[string]Band `json:"by_item"`
}

// Gate refuses approval while any candidate is unmatched or lacks a target.
type Gate struct {
	bands Bands
}

func NewGate(b Bands) *Gate {
	if b.High <= 0 && b.Medium <= 0 {
		b = DefaultBands()
	}
	return &Gate{bands: b}
}

// Evaluate never fails; it reports every blocker. An empty match set is not
// approvable.
func (g *Gate) Evaluate(cands []entity.MatchCandidate) Decision {
	d := Decision{
		Bands:  map[Band]int{},
		ByItem: make(map[string]Band, len(cands)),
	}
	for _, c := range cands {
		switch {
		case c.Status == constants.MatchStatusUnmatched:
			d.Blockers = append(d.Blockers, Blocker{c.InvoiceLineItemID, nonEmpty(c.Reason, "unmatched")})
			continue
		case c.TargetLineItemID == nil || strings.TrimSpace(*c.TargetLineItemID) == "":
			d.Blockers = append(d.Blockers, Blocker{c.InvoiceLineItemID, "candidate has no target line item"})
			continue
		}
		band := BandHigh
		if c.Status == constants.MatchStatusSuggested {
			band = g.bands.Of(c.Confidence)
		}
		d.ByItem[c.InvoiceLineItemID] = band
		d.Bands[band]++
	}
	if len(cands) == 0 {
		d.Blockers = append(d.Blockers, Blocker{Reason: "document has no line items to approve"})
	}
	d.Approvable = len(d.Blockers) == 0
	return d
}

// Check returns ErrBlocked, listing each blocker, when the set cannot be approved.
func (g *Gate) Check(cands []entity.MatchCandidate) error {
	d := g.Evaluate(cands)
	if d.Approvable {
		return nil
	}
	msgs := make([]string, 0, len(d.Blockers))
	for _, b := range d.Blockers {
		if b.InvoiceLineItemID == "" {
			msgs = append(msgs, b.Reason)
			continue
		}
		msgs = append(msgs, b.InvoiceLineItemID+": "+b.Reason)
	}
	return fmt.Errorf("%w: %s", ErrBlocked, strings.Join(msgs, "; "))
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
