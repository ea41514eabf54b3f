package entity

import "math"

// ExtractedInvoice is the normalized record produced by one extraction method.
// It is not mutated after being returned.
type ExtractedInvoice struct {
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	VendorName    string     `json:"vendor_name,omitempty"`
	IssueDate     string     `json:"issue_date,omitempty"` // YYYY-MM-DD
	Description   string     `json:"description,omitempty"`
	Amount        *float64   `json:"amount,omitempty"` // pre-tax
	Tax           *float64   `json:"tax,omitempty"`
	Total         *float64   `json:"total,omitempty"`
	LineItems     []LineItem `json:"line_items"`
	PageNumber    int        `json:"page_number"`
	Confidence    float64    `json:"confidence"`
	RawText       string     `json:"raw_text,omitempty"`
}

// LineItem is a single extracted invoice line.
type LineItem struct {
	ID          string  `json:"id,omitempty"` // page-scoped, e.g. p1-l2
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Valid reports whether the line survives normalization.
func (l LineItem) Valid() bool {
	return l.Description != "" && l.Total > 0
}

// TotalsConsistent reports whether total == amount + tax within tolerance.
// Records missing any of the three are treated as consistent.
func (inv ExtractedInvoice) TotalsConsistent(tolerance float64) bool {
	if inv.Amount == nil || inv.Tax == nil || inv.Total == nil {
		return true
	}
	return math.Abs(*inv.Total-(*inv.Amount+*inv.Tax)) <= tolerance
}

// LineItemsTotal sums the totals of all line items.
func (inv ExtractedInvoice) LineItemsTotal() float64 {
	var sum float64
	for _, li := range inv.LineItems {
		sum += li.Total
	}
	return math.Round(sum*100) / 100
}
