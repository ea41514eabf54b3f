package llm

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
)

// ShouldAttach reports whether req carries a document the provider can read directly.
// Only PDF attachments under the size gate are sent.
func ShouldAttach(req ExtractRequest) bool {
	if len(req.Attachment) == 0 {
		return false
	}
	if len(req.Attachment) > constants.MaxAttachmentMB*1024*1024 {
		return false
	}
	return AttachmentMediaType(req) == constants.MediaTypePDF
}

// AttachmentMediaType is the declared media type of req's attachment, or the one
// implied by its file name when none was declared.
func AttachmentMediaType(req ExtractRequest) string {
	mt := strings.ToLower(strings.TrimSpace(req.AttachmentMediaType))
	if mt == "" {
		mt = constants.MediaTypeForExt(filepath.Ext(req.AttachmentName))
	}
	return mt
}

// ClampConfidence bounds c to [0,1]; NaN becomes 0.
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// MeanConfidence is the arithmetic mean over the records, 0 when empty.
func MeanConfidence(invs []entity.ExtractedInvoice) float64 {
	if len(invs) == 0 {
		return 0
	}
	var sum float64
	for _, inv := range invs {
		sum += inv.Confidence
	}
	return sum / float64(len(invs))
}
