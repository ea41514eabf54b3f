package pagetext

import (
	"regexp"
	"strings"
)

var (
	reDate    = regexp.MustCompile(`\b(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2} [a-z]{3,9} \d{4}|[a-z]{3,9} \d{1,2},? \d{4})\b`)
	reCurr    = regexp.MustCompile(`\b(usd|aud|nzd|eur|gbp|cad)\b|[$£€]`)
	reAmount  = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
	reInvoice = regexp.MustCompile(`\b(tax invoice|invoice|estimate|quote|quotation)\b`)
	reTotal   = regexp.MustCompile(`\b(total|amount due|balance due)\b`)
)

// Signals summarizes which invoice-like features a page shows.
type Signals struct {
	Date     bool
	Currency bool
	Amount   bool
	Invoice  bool
	Total    bool
	Length   int
}

func Detect(txt string) Signals {
	l := strings.ToLower(txt)
	return Signals{
		Date:     reDate.MatchString(l),
		Currency: reCurr.MatchString(l),
		Amount:   reAmount.MatchString(l),
		Invoice:  reInvoice.MatchString(l),
		Total:    reTotal.MatchString(l),
		Length:   len(txt),
	}
}

// Quality is a naive [0,1] score of how invoice-like the page text looks.
func Quality(txt string) float64 {
	s := Detect(txt)
	score := 0.1
	if s.Date {
		score += 0.2
	}
	if s.Currency {
		score += 0.15
	}
	if s.Amount {
		score += 0.2
	}
	if s.Invoice {
		score += 0.15
	}
	if s.Total {
		score += 0.1
	}
	if s.Length > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
