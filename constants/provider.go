package constants

import (
	"strings"
)

type ProviderType string

const (
	ProviderHeuristic ProviderType = "heuristic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
)

var allProviders = []ProviderType{
	ProviderHeuristic,
	ProviderOpenAI,
	ProviderAnthropic,
}

func ProviderTypes() []string {
	result := make([]string, len(allProviders))
	for i, p := range allProviders {
		result[i] = string(p)
	}
	return result
}

// CanonicalProvider maps loose provider labels from configuration onto a known type.
func CanonicalProvider(input string) (ProviderType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]ProviderType{
		"regex":             ProviderHeuristic,
		"rules":             ProviderHeuristic,
		"gpt":               ProviderOpenAI,
		"openai_compatible": ProviderOpenAI,
		"azure_openai":      ProviderOpenAI,
		"claude":            ProviderAnthropic,
	}
	if p, ok := synonyms[normalized]; ok {
		return p, true
	}

	for _, p := range allProviders {
		if normalized == string(p) {
			return p, true
		}
	}
	return "", false
}
