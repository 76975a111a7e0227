// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/storage"
)

// Config holds configuration for the reembedding process.
type Config struct {
	BatchSize      int           // Number of chunks per embedding call
	ReportInterval int           // Report progress every N chunks
	MaxRetries     int           // Maximum embedding attempts per batch
	RetryDelay     time.Duration // Initial delay between retries
	Dimension      int           // Expected vector length, 0 accepts any
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reembedder orchestrates recomputing the vector of every stored chunk.
type Reembedder struct {
	store    storage.GraphStore
	embedder ai.Embedder
	config   *Config
	progress io.Writer
}

// NewReembedder creates a new reembedder. A nil config uses DefaultConfig
// and a nil progress writer discards progress output.
func NewReembedder(store storage.GraphStore, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:    store,
		embedder: embedder,
		config:   config,
		progress: progress,
	}, nil
}

// Run re-embeds all chunks and returns how many were updated.
// Processing stops at the first batch that cannot be embedded or stored.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	total := stats.Chunks

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks\n", total)
	if total == 0 {
		fmt.Fprintln(r.progress, "Nothing to reembed")
		return 0, nil
	}

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval, "chunks")
	processor := NewBatchProcessor(r.store, r.embedder, r.config.Dimension, r.config.MaxRetries, r.config.RetryDelay)
	iterator := NewChunkIterator(r.store, r.config.BatchSize)

	tracker.Start()
	err = iterator.ForEach(ctx, func(batch []*core.Chunk) error {
		if err := processor.ProcessBatch(ctx, batch); err != nil {
			return err
		}
		tracker.Update(len(batch))
		return nil
	})
	if err != nil {
		fmt.Fprintln(r.progress)
		return tracker.Processed(), fmt.Errorf("reembedding failed after %d chunks: %w", tracker.Processed(), err)
	}

	tracker.Finish()
	fmt.Fprintf(r.progress, "Reembedding complete: %d chunks in %v\n", tracker.Processed(), tracker.Elapsed().Round(time.Millisecond))
	return tracker.Processed(), nil
}
