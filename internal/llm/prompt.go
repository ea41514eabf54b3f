package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/internal/pagetext"
)

// maxPromptText bounds the page text sent to a provider.
const maxPromptText = 12000

// BuildSystemPrompt composes the system message: output contract, money and date rules,
// and whatever the caller knows about the document.
func BuildSystemPrompt(req ExtractRequest) string {
	kind := strings.TrimSpace(req.Hints.ExpectedFormat)
	if kind == "" {
		kind = "invoice"
	}

	var ctxBits []string
	if s := strings.TrimSpace(req.Hints.SupplierName); s != "" {
		ctxBits = append(ctxBits, "Known supplier: "+s+".")
	}
	if p := strings.TrimSpace(req.Hints.ProjectContext); p != "" {
		ctxBits = append(ctxBits, "Project: "+p+".")
	}

	parts := []string{
		"You are a construction " + kind + " parser. Return ONLY JSON that matches the JSON Schema below.",
		"If the document holds several invoices, return {\"invoices\": [ ... ]} with one object per invoice.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"'amount' is the pre-tax subtotal, 'tax' is GST/VAT/sales tax, 'total' is the amount payable.",
		"Write money as plain numbers without currency symbols or thousands separators.",
		"Every line item needs a description and its line total; use quantity 1 when none is shown.",
		"Set 'confidence' between 0 and 1 for how sure you are of the whole record.",
		"Never output null. If a field is not present, omit it.",
	}
	if req.Hints.DateOrder == DateOrderDMY {
		parts = append(parts, "Numeric dates on this document are day-first (DD/MM/YYYY).")
	}
	if len(ctxBits) > 0 {
		parts = append(parts, "Context: "+strings.Join(ctxBits, " "))
	}
	parts = append(parts, "JSON Schema:\n"+mustJSON(BuildInvoiceJSONSchema()))
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the page text. When a document is attached the text is
// left out and the model reads the attachment.
func BuildUserPrompt(req ExtractRequest, attached bool) string {
	var b strings.Builder
	if req.PageNumber > 0 {
		b.WriteString("Page: ")
		b.WriteString(strconv.Itoa(req.PageNumber))
		b.WriteString("\n")
	}
	if attached {
		b.WriteString("\nThe document is attached. Extract every invoice it contains.\n")
		return b.String()
	}

	text, cut := pagetext.Truncate(pagetext.Normalize(req.Text), maxPromptText)
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	if cut {
		b.WriteString("\n…(truncated)")
	}
	return b.String()
}

// BuildPrompt assembles the provider-neutral prompt for req.
func BuildPrompt(req ExtractRequest) Prompt {
	attached := ShouldAttach(req)
	p := Prompt{
		System:          BuildSystemPrompt(req),
		User:            BuildUserPrompt(req, attached),
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if attached {
		p.Attachment = req.Attachment
		p.AttachmentMediaType = AttachmentMediaType(req)
		p.AttachmentName = req.AttachmentName
		if p.AttachmentName == "" {
			p.AttachmentName = "document.pdf"
		}
	}
	return p
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
