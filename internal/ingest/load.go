package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-matcher/constants"
	"github.com/joseph-ayodele/invoice-matcher/internal/common"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/pipeline"
)

// Load reads f into a document. The document id is the content hash so reruns of
// the same file share an id.
func Load(f File, hints llm.Hints) (pipeline.Document, error) {
	doc := pipeline.Document{ID: f.HashHex, Hints: hints}
	if doc.ID == "" {
		doc.ID = filepath.Base(f.Path)
	}

	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", f.Path, err)
	}

	if _, ok := TextExts[f.Ext]; ok {
		doc.Pages = SplitPages(string(raw))
		return doc, nil
	}

	if len(raw) > constants.MaxAttachmentMB<<20 {
		return doc, common.NewAppError("INVALID_INPUT",
			fmt.Sprintf("%s is larger than %d MB", filepath.Base(f.Path), constants.MaxAttachmentMB), common.ErrInvalidInput)
	}
	doc.Attachment = raw
	doc.AttachmentMediaType = constants.MediaTypeForExt(f.Ext)
	doc.AttachmentName = filepath.Base(f.Path)

	// A sidecar "<name>.txt" written by a text renderer supplies page text.
	if side, err := os.ReadFile(strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ".txt"); err == nil {
		doc.Pages = SplitPages(string(side))
	}
	return doc, nil
}

// SplitPages splits rendered text on form feeds. A trailing empty page is dropped.
func SplitPages(s string) []string {
	pages := strings.Split(s, "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}
