package entity

import "time"

// TargetLineItem is a budget line owned by the estimate system. Read-only here.
type TargetLineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	TradeID     string  `json:"trade_id"`
	TradeName   string  `json:"trade_name,omitempty"`
	Material    float64 `json:"material_cost"`
	Labor       float64 `json:"labor_cost"`
	Equipment   float64 `json:"equipment_cost"`
}

// Cost is the summed cost components of the target.
func (t TargetLineItem) Cost() float64 {
	return t.Material + t.Labor + t.Equipment
}

// Correspondence is a confirmed link between an invoice line and a catalog entry.
type Correspondence struct {
	InvoiceLineItemID string    `json:"invoice_line_item_id"`
	TargetLineItemID  string    `json:"target_line_item_id"`
	TradeID           string    `json:"trade_id,omitempty"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}
