package entity

import "github.com/joseph-ayodele/invoice-matcher/constants"

// MatchCandidate is the engine's verdict for one invoice line item.
type MatchCandidate struct {
	InvoiceLineItemID string                `json:"invoice_line_item_id"`
	TargetLineItemID  *string               `json:"target_line_item_id"`
	Confidence        float64               `json:"confidence"`
	Reason            string                `json:"reason"`
	Status            constants.MatchStatus `json:"status"`
	Alternatives      []ScoredTarget        `json:"alternatives,omitempty"`
}

// ScoredTarget is one ranked catalog entry with its raw composite score.
type ScoredTarget struct {
	TargetLineItemID string  `json:"target_line_item_id"`
	Score            float64 `json:"score"`
	TextScore        float64 `json:"text_score"`
	AmountScore      float64 `json:"amount_score"`
	PatternBoost     float64 `json:"pattern_boost,omitempty"`
}
