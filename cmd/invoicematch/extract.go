package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-matcher/internal/app"
	"github.com/joseph-ayodele/invoice-matcher/internal/extract"
	"github.com/joseph-ayodele/invoice-matcher/internal/ingest"
	"github.com/joseph-ayodele/invoice-matcher/internal/llm"
	"github.com/joseph-ayodele/invoice-matcher/internal/pipeline"
)

var skipHidden bool

// extractCmd runs the fallback chain over individual files
var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Extract invoice records from text or document files",
	Long: `Extract invoice records from one or more files. Text files hold page text
separated by form feeds; PDF and image files are sent as attachments, with page
text taken from a sibling .txt file when present.

Examples:
  invoicematch extract invoice.txt
  invoicematch extract --supplier "Acme Concrete" --date-order DMY scan.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

// batchCmd extracts every supported file under a directory concurrently
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported file under a directory",
	Long: `Walk a directory, skip files whose content was already seen, and extract the
rest with the configured number of workers.

Examples:
  invoicematch batch ./inbox
  INVOICEMATCH_EXTRACTION__WORKERS=8 invoicematch batch ./inbox`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
}

type fileExtraction struct {
	Path  string           `json:"path"`
	Pages []extract.Result `json:"pages"`
	Error string           `json:"error,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	h, err := hints()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := make([]fileExtraction, 0, len(args))
		for _, path := range args {
			fe := fileExtraction{Path: path}
			doc, err := loadFile(path, h)
			if err != nil {
				fe.Error = err.Error()
				out = append(out, fe)
				continue
			}
			for _, req := range pipeline.Requests(doc) {
				fe.Pages = append(fe.Pages, a.Orchestrator.Extract(ctx, req))
			}
			out = append(out, fe)
		}
		return printJSON(out)
	})
}

func runBatch(cmd *cobra.Command, args []string) error {
	h, err := hints()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		files, _, err := ingest.ScanDirectory(args[0], skipHidden, a.Logger)
		if err != nil {
			return err
		}

		var docs []extract.Document
		for _, f := range files {
			if f.Err != "" || f.Dup {
				continue
			}
			doc, err := ingest.Load(f, h)
			if err != nil {
				a.Logger.Warn("batch.load.failed", "path", f.Path, "error", err)
				continue
			}
			for _, req := range pipeline.Requests(doc) {
				docs = append(docs, extract.Document{
					ID:      fmt.Sprintf("%s#p%d", f.Path, req.PageNumber),
					Request: req,
				})
			}
		}
		return printJSON(a.Orchestrator.Batch(ctx, docs))
	})
}

func loadFile(path string, h llm.Hints) (pipeline.Document, error) {
	f, err := ingest.Stat(path)
	if err != nil {
		return pipeline.Document{}, err
	}
	return ingest.Load(f, h)
}
