package matching

import (
	"math"
	"slices"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/invoice-matcher/internal/patterns"
)

// fuzzyTokenMin is the per-token edit similarity at which two words count as the
// same word, so "foundation" and "foundations" or "plasterbord" and "plasterboard"
// still overlap.
const fuzzyTokenMin = 0.8

// TextSimilarity is a Dice coefficient over description tokens with fuzzy token
// equality. Identical descriptions score 1, disjoint vocabularies score 0.
func TextSimilarity(a, b string) float64 {
	na, nb := squash(a), squash(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := uniqueTokens(a), uniqueTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	used := make([]bool, len(tb))
	matched := 0
	for _, x := range ta {
		best, bestSim := -1, 0.0
		for j, y := range tb {
			if used[j] {
				continue
			}
			if x == y {
				best, bestSim = j, 1
				break
			}
			if s := levenshtein.Similarity(x, y, nil); s >= fuzzyTokenMin && s > bestSim {
				best, bestSim = j, s
			}
		}
		if best >= 0 {
			used[best] = true
			matched++
		}
	}
	return 2 * float64(matched) / float64(len(ta)+len(tb))
}

// AmountProximity is 1 when amount equals estimate and falls linearly to 0 at a
// relative difference of tolerance. Non-positive values score 0.
func AmountProximity(amount, estimate, tolerance float64) float64 {
	if amount <= 0 || estimate <= 0 || tolerance <= 0 {
		return 0
	}
	rel := math.Abs(amount-estimate) / estimate
	return math.Max(0, 1-rel/tolerance)
}

func uniqueTokens(s string) []string {
	toks := patterns.Tokens(s)
	slices.Sort(toks)
	return slices.Compact(toks)
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
