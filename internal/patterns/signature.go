package patterns

import (
	"regexp"
	"slices"
	"strings"
)

// maxSignatureTokens keeps signatures short enough that wording drift in long
// descriptions still lands on the same key.
const maxSignatureTokens = 6

var (
	reNonWord = regexp.MustCompile(`[^a-z0-9&]+`)
	reDigits  = regexp.MustCompile(`^\d`)
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true, "to": true,
	"in": true, "on": true, "at": true, "with": true, "by": true, "per": true, "&": true,
	"est": true, "estimate": true, "supply": true, "install": true, "incl": true, "inc": true,
	"ex": true, "gst": true, "tax": true, "item": true, "items": true, "total": true,
}

var units = map[string]bool{
	"m": true, "m2": true, "m3": true, "mm": true, "cm": true, "lm": true, "sqm": true, "ea": true,
	"each": true, "hr": true, "hrs": true, "hour": true, "hours": true, "day": true, "days": true,
	"kg": true, "t": true, "ton": true, "tons": true, "lot": true, "ls": true, "qty": true, "x": true,
}

var legalSuffixes = map[string]bool{
	"pty": true, "ltd": true, "limited": true, "inc": true, "llc": true, "co": true,
	"corp": true, "corporation": true, "company": true, "plc": true, "gmbh": true,
}

// Tokens lowercases s and returns its meaningful words: numbers, units and filler
// words are removed.
func Tokens(s string) []string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("³", "3", "²", "2").Replace(s)
	var out []string
	for _, tok := range reNonWord.Split(s, -1) {
		if tok == "" || stopwords[tok] || units[tok] || reDigits.MatchString(tok) {
			continue
		}
		out = append(out, singular(tok))
	}
	return out
}

// Signature is the order-independent key for a line description, e.g.
// "Concrete pour - 50m³" and "POUR CONCRETE" both give "concrete pour".
func Signature(description string) string {
	toks := Tokens(description)
	slices.Sort(toks)
	toks = slices.Compact(toks)
	if len(toks) > maxSignatureTokens {
		toks = toks[:maxSignatureTokens]
	}
	return strings.Join(toks, " ")
}

// SupplierKey normalizes a supplier name so "Acme Concrete Pty. Ltd." and
// "ACME CONCRETE" share patterns.
func SupplierKey(name string) string {
	var out []string
	for _, tok := range reNonWord.Split(strings.ToLower(name), -1) {
		if tok == "" || tok == "&" || legalSuffixes[tok] {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func singular(tok string) string {
	switch {
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	}
	return tok
}
