package llm

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// lineItemSources lists, per field, the keys a reply may use for it, most trusted
// first. When a line carries several of them the earliest wins.
var lineItemSources = map[string][]string{
	"description": {"description", "desc", "item", "name", "details"},
	"quantity":    {"quantity", "qty", "units"},
	"unit_price":  {"unit_price", "unit_cost", "unit_rate", "price", "rate"},
	"total":       {"total", "line_total", "amount", "extended", "cost"},
}

type lineItemSource struct {
	field string
	rank  int
}

var lineItemKeys = func() map[string]lineItemSource {
	m := map[string]lineItemSource{}
	for field, keys := range lineItemSources {
		for i, k := range keys {
			m[k] = lineItemSource{field: field, rank: i}
		}
	}
	return m
}()

// SanitizeLineItems cleans a decoded line_items value. Entries that are not objects
// are dropped; inside each entry synonyms are renamed, nulls and unknown keys removed.
// Business rules (empty description, non-positive total) are left to the normalizer.
// A nil slice means nothing usable was found.
func SanitizeLineItems(v any) ([]any, []string) {
	raw, ok := v.([]any)
	if !ok {
		if single, isObj := v.(map[string]any); isObj {
			raw = []any{single}
		} else {
			return nil, []string{"line_items(type)"}
		}
	}

	var dropped []string
	out := make([]any, 0, len(raw))
	for i, e := range raw {
		obj, ok := e.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("line_items[%d](type)", i))
			continue
		}
		item := make(map[string]any, len(obj))
		ranks := make(map[string]int, len(obj))
		for _, key := range slices.Sorted(maps.Keys(obj)) {
			src, ok := lineItemKeys[normalizeKey(key)]
			if !ok {
				continue
			}
			if r, seen := ranks[src.field]; seen && r <= src.rank {
				continue
			}
			k := src.field
			switch t := obj[key].(type) {
			case string:
				s := strings.TrimSpace(t)
				if s == "" {
					continue
				}
				item[k] = s
			case float64:
				if k == "description" {
					item[k] = fmt.Sprintf("%v", t)
				} else {
					item[k] = t
				}
			default:
				continue
			}
			ranks[k] = src.rank
		}
		if len(item) == 0 {
			dropped = append(dropped, fmt.Sprintf("line_items[%d](empty)", i))
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, dropped
	}
	return out, dropped
}
