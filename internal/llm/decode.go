package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Decoded is a provider reply turned into generic JSON, tagged with how it got there.
type Decoded struct {
	Kind  ParseKind
	Value any
}

var reFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// Decode parses text strictly as JSON. When that fails it strips markdown fences and
// scans for the outermost balanced object or array, and parses that instead.
func Decode(text string) Decoded {
	trimmed := strings.TrimSpace(text)
	var v any
	if trimmed != "" && json.Unmarshal([]byte(trimmed), &v) == nil {
		return Decoded{Kind: ParseStrict, Value: v}
	}

	candidates := make([]string, 0, 2)
	if m := reFence.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, trimmed)

	for _, c := range candidates {
		if frag, ok := outermostJSON(c); ok {
			var rv any
			if json.Unmarshal([]byte(frag), &rv) == nil {
				return Decoded{Kind: ParseRecovered, Value: rv}
			}
		}
	}
	return Decoded{Kind: ParseFailed}
}

// outermostJSON returns the first balanced {...} or [...] span of s. Brackets inside
// JSON strings are ignored.
func outermostJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	for start >= 0 {
		if end, ok := matchClose(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchClose(s string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Records flattens a decoded payload into invoice objects. Accepted shapes are a
// single object, {"invoices": [...]}, and a top-level array.
func Records(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		for _, key := range []string{"invoices", "records", "results"} {
			if inner, ok := t[key]; ok {
				return Records(inner)
			}
		}
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
