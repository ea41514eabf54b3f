package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

const (
	// DateLayout is the canonical date format of every normalized record.
	DateLayout = "2006-01-02"

	// TotalsTolerance is the allowed gap between total and amount+tax.
	TotalsTolerance = 0.50

	totalsPenalty      = 0.8
	totalsPenaltyFloor = 0.3

	// RecoveredParseFactor scales confidence of replies that needed salvage.
	RecoveredParseFactor = 0.9
)

var (
	reMoneyJunk   = regexp.MustCompile(`[^0-9.,\-]`)
	reNumericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	reOrdinal     = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)
)

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006.01.02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102",
	"2 Jan 2006",
	"2 January 2006",
	"02 Jan 2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"Mon, 2 Jan 2006",
	"Monday, 2 January 2006",
	"Monday, January 2, 2006",
}

// ParseMoney turns a JSON number or a formatted string ("$1,234.56", "1.234,56",
// "AUD 12,50", "(45.00)") into a value rounded to 2 decimals.
func ParseMoney(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		f, _ := decimal.NewFromFloat(t).Round(2).Float64()
		return f, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		return parseMoneyString(t)
	}
	return 0, false
}

func parseMoneyString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = reMoneyJunk.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "-") {
		negative = true
	}
	s = strings.ReplaceAll(s, "-", "")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever separator comes last is the decimal point
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		// 1.234.567 style grouping
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if negative {
		d = d.Neg()
	}
	f, _ := d.Round(2).Float64()
	return f, true
}

// NormalizeDate returns s in DateLayout. Ambiguous numeric dates are read month-first
// unless order is DateOrderDMY or the first field cannot be a month.
func NormalizeDate(s string, order DateOrder) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if m := reNumericDate.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			y += 2000
		}
		month, day := a, b
		if order == DateOrderDMY || a > 12 {
			month, day = b, a
		}
		if month > 12 && day <= 12 {
			month, day = day, month
		}
		return buildDate(y, month, day)
	}

	cleaned := reOrdinal.ReplaceAllString(s, "$1")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

func buildDate(y, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return t.Format(DateLayout), true
}

// NormalizeOptions carries per-call context for NormalizeRecord.
type NormalizeOptions struct {
	DateOrder  DateOrder
	PageNumber int
	RawText    string

	// ConfidenceScale multiplies the clamped confidence; 0 means 1.
	ConfidenceScale float64
}

// NormalizeRecord converts one sanitized record into an ExtractedInvoice: money is
// rounded to cents, the date made canonical, invalid line items dropped, confidence
// clamped and scaled, and the totals penalty applied.
func NormalizeRecord(rec map[string]any, opts NormalizeOptions) entity.ExtractedInvoice {
	inv := entity.ExtractedInvoice{
		InvoiceNumber: stringField(rec, "invoice_number"),
		VendorName:    stringField(rec, "vendor_name"),
		Description:   stringField(rec, "description"),
		PageNumber:    opts.PageNumber,
		RawText:       opts.RawText,
	}
	if d, ok := NormalizeDate(stringField(rec, "issue_date"), opts.DateOrder); ok {
		inv.IssueDate = d
	}
	inv.Amount = moneyField(rec, "amount")
	inv.Tax = moneyField(rec, "tax")
	inv.Total = moneyField(rec, "total")
	if p, ok := rec["page_number"].(float64); ok && p > 0 {
		inv.PageNumber = int(p)
	}

	if items, ok := rec["line_items"].([]any); ok {
		for i, e := range items {
			obj, ok := e.(map[string]any)
			if !ok {
				continue
			}
			li := normalizeLineItem(obj)
			if !li.Valid() {
				continue
			}
			li.ID = fmt.Sprintf("p%d-l%d", inv.PageNumber, i+1)
			inv.LineItems = append(inv.LineItems, li)
		}
	}

	conf, ok := rec["confidence"].(float64)
	if !ok {
		conf = completeness(inv)
	}
	conf = ClampConfidence(conf)
	if opts.ConfidenceScale > 0 {
		conf = ClampConfidence(conf * opts.ConfidenceScale)
	}
	inv.Confidence = conf
	ApplyTotalsPenalty(&inv)
	return inv
}

func normalizeLineItem(obj map[string]any) entity.LineItem {
	li := entity.LineItem{
		Description: stringField(obj, "description"),
		Quantity:    1,
	}
	if q, ok := ParseMoney(obj["quantity"]); ok && q > 0 {
		li.Quantity = q
	}
	if p, ok := ParseMoney(obj["unit_price"]); ok {
		li.UnitPrice = p
	}
	if t, ok := ParseMoney(obj["total"]); ok {
		li.Total = t
	}
	return li
}

// ApplyTotalsPenalty multiplies confidence by 0.8 when amount, tax and total are all
// present and disagree by more than TotalsTolerance. The penalty never takes
// confidence below 0.3 unless it already was. It reports whether it fired.
func ApplyTotalsPenalty(inv *entity.ExtractedInvoice) bool {
	if inv.TotalsConsistent(TotalsTolerance) {
		return false
	}
	p := inv.Confidence * totalsPenalty
	if p < totalsPenaltyFloor {
		p = min(inv.Confidence, totalsPenaltyFloor)
	}
	inv.Confidence = p
	return true
}

// completeness stands in for confidence when a method does not report one.
func completeness(inv entity.ExtractedInvoice) float64 {
	score := 0.0
	if inv.InvoiceNumber != "" {
		score += 0.2
	}
	if inv.VendorName != "" {
		score += 0.2
	}
	if inv.IssueDate != "" {
		score += 0.2
	}
	if inv.Total != nil {
		score += 0.2
	}
	if len(inv.LineItems) > 0 {
		score += 0.2
	}
	return score
}

func stringField(m map[string]any, k string) string {
	switch t := m[k].(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func moneyField(m map[string]any, k string) *float64 {
	f, ok := ParseMoney(m[k])
	if !ok {
		return nil
	}
	return &f
}
