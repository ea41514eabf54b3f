// Package heuristic is the zero-cost extraction method: regular expressions over
// normalized page text. It sits first in most chains so clean, machine-generated
// invoices never reach a paid provider.
package heuristic

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/pagetext"
)

// MaxConfidence caps what pattern matching may claim about its own output.
const MaxConfidence = 0.85

const (
	money = `(\(?-?[$£€]?[ \t]?\d[\d,]*(?:\.\d{1,2})?\)?)`
	// label separator: punctuation, an optional rate such as "(10%)", an optional currency code
	sep = `[ \t:|=]*(?:\(?\d+(?:\.\d+)?[ \t]*%\)?[ \t:|=]*)?(?:(?:aud|usd|nzd|cad|eur|gbp)[ \t:|=]*)?`
	inc = `(?:[ \t]*\(?(?:inc(?:l(?:uding)?)?|ex(?:cl(?:uding)?)?)\.?[ \t]*(?:gst|tax|vat)\)?)?`
)

var (
	reInvoiceNo = regexp.MustCompile(`(?im)\b(?:tax[ \t]+)?invoice[ \t]*(?:no\.?|number|num|#)[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-/]*\d[A-Z0-9\-/]*)`)
	reDateLabel = regexp.MustCompile(`(?im)\b(?:invoice[ \t]+|issue[ \t]+|tax[ \t]+)?date(?:[ \t]+issued)?[ \t]*:?[ \t]*([^\n|]+)`)
	reAnyDate   = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{1,2}(?:st|nd|rd|th)? [a-z]{3,9},? \d{4}|[a-z]{3,9} \d{1,2}(?:st|nd|rd|th)?,? \d{4})\b`)
	reSubtotal  = regexp.MustCompile(`(?im)^[ \t]*(?:sub[ \t-]?total|net[ \t]+amount|amount[ \t]+ex(?:cl(?:uding)?)?\.?[ \t]*(?:gst|tax|vat))` + sep + money)
	reTax       = regexp.MustCompile(`(?im)^[ \t]*(?:gst|vat|sales[ \t]+tax|tax)(?:[ \t]+amount)?` + sep + money)
	reTotal     = regexp.MustCompile(`(?im)^[ \t]*(?:grand[ \t]+total|total(?:[ \t]+(?:due|payable|amount))?` + inc + `|amount[ \t]+due|balance[ \t]+due)` + sep + money)
	reTrailing  = regexp.MustCompile(`^(.*[A-Za-z].*?)[ \t]+([$£€][ \t]?\d[\d,]*\.\d{2})$`)
	reMoneyCell = regexp.MustCompile(`^\(?-?(?:[$£€][ \t]?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?|(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2})\)?$`)
	reLetters   = regexp.MustCompile(`[A-Za-z]{2,}`)
	reSkipLine  = regexp.MustCompile(`(?i)\b(sub[ \t-]?total|total|gst|vat|tax|balance|amount due|paid|payment|deposit|discount)\b`)
	reHeader    = regexp.MustCompile(`(?i)^(tax invoice|invoice|estimate|quote|quotation|page \d+|abn\b|acn\b|bill to|ship to|date\b)`)
)

// Parser implements llm.Adapter without any network call.
type Parser struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) Name() string { return string(constants.ProviderHeuristic) }

// Call extracts a single invoice from req.Text. It never costs anything; it fails
// with common.ErrMalformedResponse when the page shows no invoice fields at all.
func (p *Parser) Call(ctx context.Context, req llm.ExtractRequest) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ParseKind: llm.ParseFailed}
	if err := ctx.Err(); err != nil {
		return reply, err
	}

	text := pagetext.Normalize(req.Text)
	rec, found := Fields(text, req.Hints)
	reply.Latency = time.Since(start)
	if found == 0 {
		p.logger.Info("heuristic.extract.empty", "page", req.PageNumber, "text_len", len(text))
		return reply, fmt.Errorf("%w: heuristic found no invoice fields", common.ErrMalformedResponse)
	}

	rec["confidence"] = score(rec, text)
	inv := llm.NormalizeRecord(rec, llm.NormalizeOptions{
		DateOrder:  req.Hints.DateOrder,
		PageNumber: req.PageNumber,
		RawText:    req.Text,
	})

	reply.ParseKind = llm.ParseStrict
	reply.Invoices = append(reply.Invoices, inv)
	reply.Confidence = inv.Confidence
	reply.Latency = time.Since(start)

	p.logger.Info("heuristic.extract.ok",
		"page", req.PageNumber,
		"fields", found,
		"line_items", len(inv.LineItems),
		"confidence", inv.Confidence,
		"elapsed_ms", reply.Latency.Milliseconds(),
	)
	return reply, nil
}

// Fields pulls raw invoice fields out of normalized text, shaped like a sanitized
// provider record so the shared normalizer can finish the job. It returns how many
// invoice fields were found; a vendor line alone does not count.
func Fields(text string, hints llm.Hints) (map[string]any, int) {
	rec := map[string]any{}
	found := 0

	if m := reInvoiceNo.FindStringSubmatch(text); m != nil {
		rec["invoice_number"] = strings.TrimSpace(m[1])
		found++
	}
	if v := vendor(text, hints.SupplierName); v != "" {
		rec["vendor_name"] = v
	}
	if d := issueDate(text, hints.DateOrder); d != "" {
		rec["issue_date"] = d
		found++
	}
	if m := reSubtotal.FindStringSubmatch(text); m != nil {
		rec["amount"] = m[1]
		found++
	}
	if m := reTax.FindStringSubmatch(text); m != nil {
		rec["tax"] = m[1]
		found++
	}
	if all := reTotal.FindAllStringSubmatch(text, -1); len(all) > 0 {
		rec["total"] = all[len(all)-1][1]
		found++
	}
	if items := lineItems(text); len(items) > 0 {
		rec["line_items"] = items
		found++
	}
	return rec, found
}

func vendor(text, hint string) string {
	if h := strings.TrimSpace(hint); h != "" && strings.Contains(strings.ToLower(text), strings.ToLower(h)) {
		return h
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.SplitN(line, " | ", 2)[0])
		if line == "" || reHeader.MatchString(line) || !reLetters.MatchString(line) {
			continue
		}
		if reSkipLine.MatchString(line) || reAnyDate.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

func issueDate(text string, order llm.DateOrder) string {
	if m := reDateLabel.FindStringSubmatch(text); m != nil {
		if d := reAnyDate.FindString(m[1]); d != "" {
			if out, ok := llm.NormalizeDate(d, order); ok {
				return out
			}
		}
	}
	if d := reAnyDate.FindString(text); d != "" {
		if out, ok := llm.NormalizeDate(d, order); ok {
			return out
		}
	}
	return ""
}

// lineItems reads table rows. Rows split on " | " into description, optional
// quantity and unit price, and a trailing line total; untabulated rows need a
// currency-formatted amount at the end.
func lineItems(text string) []any {
	var out []any
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || reSkipLine.MatchString(line) || reHeader.MatchString(line) {
			continue
		}

		cells := strings.Split(line, " | ")
		if len(cells) >= 2 {
			last := cells[len(cells)-1]
			if reMoneyCell.MatchString(last) && reLetters.MatchString(cells[0]) {
				item := map[string]any{"description": cells[0], "total": last}
				switch len(cells) {
				case 3:
					item["quantity"] = cells[1]
				case 4:
					item["quantity"] = cells[1]
					item["unit_price"] = cells[2]
				}
				out = append(out, item)
				continue
			}
		}

		if m := reTrailing.FindStringSubmatch(line); m != nil {
			out = append(out, map[string]any{"description": strings.TrimSpace(m[1]), "total": m[2]})
		}
	}
	return out
}

// score is additive over the fields found, nudged by overall page quality.
func score(rec map[string]any, text string) float64 {
	s := 0.1
	if _, ok := rec["invoice_number"]; ok {
		s += 0.15
	}
	if _, ok := rec["vendor_name"]; ok {
		s += 0.1
	}
	if _, ok := rec["issue_date"]; ok {
		s += 0.1
	}
	if _, ok := rec["total"]; ok {
		s += 0.2
	}
	_, hasAmount := rec["amount"]
	_, hasTax := rec["tax"]
	if hasAmount && hasTax {
		s += 0.1
	}
	if _, ok := rec["line_items"]; ok {
		s += 0.15
	}
	s += 0.1 * pagetext.Quality(text)
	return min(s, MaxConfidence)
}
