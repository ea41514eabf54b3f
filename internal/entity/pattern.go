package entity

import "time"

// Pattern is a learned supplier/description association kept by the pattern store.
type Pattern struct {
	ID               int64     `json:"id"`
	SupplierName     string    `json:"supplier_name"`
	Signature        string    `json:"signature"`
	TradeID          string    `json:"trade_id"`
	TargetLineItemID *string   `json:"target_line_item_id,omitempty"`
	HitCount         int       `json:"hit_count"`
	Accuracy         float64   `json:"accuracy"`
	AvgAmount        float64   `json:"avg_amount"`
	LastConfirmedAt  time.Time `json:"last_confirmed_at"`
}
