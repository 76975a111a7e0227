package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/medrag/core"
)

// Result is the outcome of ingesting one document of a batch.
type Result struct {
	Document Document
	Stats    *core.IngestStats
	Err      error
}

// Results holds batch outcomes in input order.
type Results []Result

// Err joins the errors of all failed documents, or returns nil.
func (r Results) Err() error {
	var errs []error
	for _, res := range r {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Document.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed counts the documents that returned an error.
func (r Results) Failed() int {
	n := 0
	for _, res := range r {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// BatchIngester ingests many documents concurrently with a shared Pipeline.
type BatchIngester struct {
	pipeline *Pipeline
	pool     *ants.Pool
	logger   *slog.Logger
}

// BatchOption configures a BatchIngester.
type BatchOption func(*BatchIngester) error

// WithPoolSize sets the worker pool size for concurrent ingestion.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) BatchOption {
	return func(b *BatchIngester) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if b.pool != nil {
			b.pool.Release()
		}
		b.pool = pool
		return nil
	}
}

// WithBatchLogger sets a custom logger.
// Default is slog.Default().
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchIngester) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBatchIngester creates a batch ingester backed by a worker pool.
// Call Release when done.
func NewBatchIngester(pipeline *Pipeline, opts ...BatchOption) (*BatchIngester, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	b := &BatchIngester{
		pipeline: pipeline,
		pool:     pool,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			b.Release()
			return nil, err
		}
	}

	b.logger = b.logger.With("component", "batch-ingester")
	return b, nil
}

// IngestAll ingests docs and waits for all of them. A failing document does
// not stop the others. Documents not yet started when ctx is done report ctx.Err().
func (b *BatchIngester) IngestAll(ctx context.Context, docs []Document, opts Options) Results {
	results := make(Results, len(docs))
	var wg sync.WaitGroup

	for i, doc := range docs {
		results[i].Document = doc
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return
			}
			results[i].Stats, results[i].Err = b.pipeline.Ingest(ctx, doc, opts)
		})
		if err != nil {
			wg.Done()
			results[i].Err = err
		}
	}

	wg.Wait()
	b.logger.Info("batch ingested", "documents", len(docs), "failed", results.Failed())
	return results
}

// Release releases the worker pool.
// The ingester should not be used after calling Release.
func (b *BatchIngester) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}
