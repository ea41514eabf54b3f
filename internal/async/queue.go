// Package async processes whole documents on a fixed pool of workers fed by a
// bounded queue.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/invoice-matcher/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting for processing.
type Job struct {
	Document    pipeline.Document
	SubmittedAt time.Time
}

// Processor is the document pipeline a queue drives.
type Processor interface {
	ProcessDocument(ctx context.Context, doc pipeline.Document) pipeline.Report
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}
