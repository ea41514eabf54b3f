package llm

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// recordSynonyms maps keys models commonly invent onto the invoice schema.
var recordSynonyms = map[string]string{
	"invoice_no":     "invoice_number",
	"invoice_num":    "invoice_number",
	"invoice_id":     "invoice_number",
	"invoice_#":      "invoice_number",
	"number":         "invoice_number",
	"vendor":         "vendor_name",
	"supplier":       "vendor_name",
	"supplier_name":  "vendor_name",
	"merchant":       "vendor_name",
	"merchant_name":  "vendor_name",
	"date":           "issue_date",
	"invoice_date":   "issue_date",
	"issued":         "issue_date",
	"issued_date":    "issue_date",
	"subtotal":       "amount",
	"sub_total":      "amount",
	"net":            "amount",
	"net_amount":     "amount",
	"pre_tax_amount": "amount",
	"amount_ex_tax":  "amount",
	"gst":            "tax",
	"vat":            "tax",
	"sales_tax":      "tax",
	"tax_amount":     "tax",
	"grand_total":    "total",
	"total_amount":   "total",
	"amount_due":     "total",
	"balance_due":    "total",
	"items":          "line_items",
	"lines":          "line_items",
	"lineitems":      "line_items",
	"line_item":      "line_items",
	"notes":          "description",
	"summary":        "description",
	"page":           "page_number",
}

var recordAllowed = map[string]struct{}{
	"invoice_number": {}, "vendor_name": {}, "issue_date": {}, "description": {},
	"amount": {}, "tax": {}, "total": {}, "line_items": {}, "page_number": {}, "confidence": {},
}

// SanitizeRecord reshapes one decoded reply object so it can validate:
//   - renames known synonyms (supplier -> vendor_name, gst -> tax, items -> line_items)
//   - drops null / empty values and values of the wrong JSON type
//   - coerces numeric strings for confidence and page_number
//   - removes unknown keys
//
// It returns the cleaned copy and the list of dropped or renamed keys.
func SanitizeRecord(in map[string]any, logger *slog.Logger) (map[string]any, []string) {
	if logger == nil {
		logger = slog.Default()
	}

	m := make(map[string]any, len(in))
	for k, v := range in {
		m[normalizeKey(k)] = v
	}

	dropped := make([]string, 0, 8)
	for _, from := range slices.Sorted(maps.Keys(recordSynonyms)) {
		to := recordSynonyms[from]
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	for _, k := range []string{"invoice_number", "vendor_name", "issue_date", "description"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		case float64:
			// invoice numbers sometimes come back as bare numbers
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			delete(m, k)
			dropped = append(dropped, k+"(type)")
		}
	}

	for _, k := range []string{"amount", "tax", "total"} {
		if !keepMoney(m, k) {
			dropped = append(dropped, k+"(invalid)")
		}
	}

	for _, k := range []string{"confidence", "page_number"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				m[k] = f
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(invalid)")
			}
		default:
			delete(m, k)
			dropped = append(dropped, k+"(type)")
		}
	}
	if f, ok := m["page_number"].(float64); ok && f < 0 {
		delete(m, "page_number")
		dropped = append(dropped, "page_number(negative)")
	}

	if v, ok := m["line_items"]; ok {
		items, notes := SanitizeLineItems(v)
		if items == nil {
			delete(m, "line_items")
		} else {
			m["line_items"] = items
		}
		dropped = append(dropped, notes...)
	}

	for _, k := range slices.Sorted(maps.Keys(m)) {
		if _, ok := recordAllowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	if len(dropped) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return m, dropped
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	return strings.ReplaceAll(k, "-", "_")
}

// keepMoney leaves m[k] alone when it is a number or a non-empty string and
// deletes it otherwise. It reports false when something was deleted.
func keepMoney(m map[string]any, k string) bool {
	v, ok := m[k]
	if !ok {
		return true
	}
	switch t := v.(type) {
	case float64:
		return true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			return false
		}
		m[k] = s
		return true
	default:
		delete(m, k)
		return false
	}
}
