package llm

// BuildInvoiceJSONSchema returns the JSON Schema (draft 2020-12 subset) of one invoice
// record. It is sent to providers in the prompt and used locally, after sanitation,
// to validate every record of a reply.
func BuildInvoiceJSONSchema() map[string]any {
	props := map[string]any{
		"invoice_number": map[string]any{"type": "string", "minLength": 1},
		"vendor_name":    map[string]any{"type": "string", "minLength": 1},
		"issue_date":     map[string]any{"type": "string"},
		"description":    map[string]any{"type": "string"},
		"amount":         moneyProp(),
		"tax":            moneyProp(),
		"total":          moneyProp(),
		"page_number":    map[string]any{"type": "number", "minimum": 0},
		"confidence":     map[string]any{"type": "number"},
		"line_items": map[string]any{
			"type":  "array",
			"items": lineItemSchema(),
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"minProperties":        1,
	}
}

func lineItemSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"quantity":    moneyProp(),
			"unit_price":  moneyProp(),
			"total":       moneyProp(),
		},
	}
}

// moneyProp accepts numbers and formatted strings; the normalizer does the rest.
func moneyProp() map[string]any {
	return map[string]any{
		"type": []any{"number", "string"},
	}
}
