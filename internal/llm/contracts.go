package llm

import (
	"context"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

// DateOrder tells the normalizer how to read ambiguous numeric dates such as 03/04/2026.
type DateOrder string

const (
	DateOrderMDY DateOrder = "MDY"
	DateOrderDMY DateOrder = "DMY"
)

// Hints carries caller context that helps a method read the document.
type Hints struct {
	ExpectedFormat string    `json:"expected_format,omitempty"` // e.g. "invoice", "estimate"
	SupplierName   string    `json:"supplier_name,omitempty"`
	ProjectContext string    `json:"project_context,omitempty"`
	DateOrder      DateOrder `json:"date_order,omitempty"`
}

// ExtractRequest is built once per document and handed to every method in the chain.
type ExtractRequest struct {
	Text       string
	PageNumber int
	Hints      Hints

	// Attachment holds the raw document when the caller has it, e.g. PDF bytes.
	Attachment          []byte
	AttachmentMediaType string
	AttachmentName      string

	Temperature     float64
	MaxOutputTokens int64
}

// ParseKind records how a provider reply was turned into JSON.
type ParseKind string

const (
	ParseStrict    ParseKind = "strict"
	ParseRecovered ParseKind = "recovered"
	ParseFailed    ParseKind = "failed"
)

// Reply is what one method call produced. Cost, TokensUsed and Latency are set
// even when Call returns an error.
type Reply struct {
	Invoices   []entity.ExtractedInvoice
	Confidence float64
	Cost       float64
	TokensUsed int64
	Latency    time.Duration
	ParseKind  ParseKind
	Raw        string
}

// Invoice returns the first record of the reply, or nil.
func (r Reply) Invoice() *entity.ExtractedInvoice {
	if len(r.Invoices) == 0 {
		return nil
	}
	inv := r.Invoices[0]
	return &inv
}

// Adapter is one extraction method. The orchestrator only ever sees this interface.
type Adapter interface {
	Name() string
	Call(ctx context.Context, req ExtractRequest) (Reply, error)
}

// Prompt is the provider-neutral request sent to a Completer.
type Prompt struct {
	System              string
	User                string
	Attachment          []byte
	AttachmentMediaType string
	AttachmentName      string
	Temperature         float64
	MaxOutputTokens     int64
}

// Completion is the raw text answer and its token usage.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer is the thin provider SDK binding wrapped by ProviderAdapter.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (Completion, error) {
	return f(ctx, p)
}
