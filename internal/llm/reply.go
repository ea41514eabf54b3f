package llm

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

// ParseReply turns raw provider text into normalized invoices. Every record of a
// multi-record reply is sanitized, validated and normalized on its own; records that
// fail validation are skipped. The error wraps common.ErrMalformedResponse when no
// record survives.
func ParseReply(text string, req ExtractRequest, logger *slog.Logger) ([]entity.ExtractedInvoice, ParseKind, error) {
	if logger == nil {
		logger = slog.Default()
	}

	decoded := Decode(text)
	if decoded.Kind == ParseFailed {
		return nil, ParseFailed, fmt.Errorf("%w: no JSON object in reply", common.ErrMalformedResponse)
	}

	records := Records(decoded.Value)
	if len(records) == 0 {
		return nil, ParseFailed, fmt.Errorf("%w: reply holds no invoice objects", common.ErrMalformedResponse)
	}

	opts := NormalizeOptions{
		DateOrder:  req.Hints.DateOrder,
		PageNumber: req.PageNumber,
		RawText:    req.Text,
	}
	if decoded.Kind == ParseRecovered {
		opts.ConfidenceScale = RecoveredParseFactor
	}

	out := make([]entity.ExtractedInvoice, 0, len(records))
	var lastErr error
	for i, rec := range records {
		clean, _ := SanitizeRecord(rec, logger)
		if err := ValidateRecord(clean); err != nil {
			logger.Warn("llm.extract.schema_validation_failed", "record", i, "error", err)
			lastErr = err
			continue
		}
		out = append(out, NormalizeRecord(clean, opts))
	}
	if len(out) == 0 {
		return nil, ParseFailed, fmt.Errorf("%w: %v", common.ErrMalformedResponse, lastErr)
	}
	return out, decoded.Kind, nil
}
