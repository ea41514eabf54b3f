package main

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-matcher/internal/app"
	"github.com/joseph-ayodele/invoice-matcher/internal/async"
	"github.com/joseph-ayodele/invoice-matcher/internal/ingest"
	"github.com/joseph-ayodele/invoice-matcher/internal/pipeline"
)

type processOutput struct {
	Path   string           `json:"path"`
	Report *pipeline.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	h, err := hints()
	if err != nil {
		return err
	}
	catalog, existing, err := loadCatalog()
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if !info.IsDir() {
			doc, err := loadFile(args[0], h)
			if err != nil {
				return err
			}
			doc.Catalog, doc.Existing = catalog, existing
			return printJSON(a.Processor.ProcessDocument(ctx, doc))
		}

		files, _, err := ingest.ScanDirectory(args[0], true, a.Logger)
		if err != nil {
			return err
		}
		out := make([]processOutput, len(files))
		index := make(map[string]int, len(files))
		var mu sync.Mutex

		q := async.NewProcessorQueue(ctx, a.Processor, a.Logger,
			async.WithWorkers(a.Config.Extraction.Workers),
			async.WithProcessTimeout(a.Config.Extraction.Timeout*4),
			async.WithResultFunc(func(job async.Job, rep pipeline.Report) {
				mu.Lock()
				defer mu.Unlock()
				out[index[job.Document.ID]].Report = &rep
			}),
		)
		for i, f := range files {
			out[i].Path = f.Path
			switch {
			case f.Err != "":
				out[i].Error = f.Err
				continue
			case f.Dup:
				out[i].Error = "duplicate of an earlier file"
				continue
			}
			doc, err := ingest.Load(f, h)
			if err != nil {
				out[i].Error = err.Error()
				continue
			}
			doc.Catalog, doc.Existing = catalog, existing
			mu.Lock()
			index[doc.ID] = i
			mu.Unlock()
			if err := q.Enqueue(ctx, async.Job{Document: doc}); err != nil {
				out[i].Error = err.Error()
			}
		}
		if err := q.Shutdown(ctx); err != nil {
			return err
		}
		return printJSON(out)
	})
}
