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
	"math"
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/retry"
	"github.com/poiesic/medrag/storage"
)

// BatchProcessor embeds and stores one batch of chunks at a time.
type BatchProcessor struct {
	store      storage.Writer
	embedder   ai.Embedder
	dimension  int
	maxRetries int
	retryDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// A dimension of 0 accepts vectors of any length.
func NewBatchProcessor(store storage.Writer, embedder ai.Embedder, dimension, maxRetries int, retryDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		store:      store,
		embedder:   embedder,
		dimension:  dimension,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// ProcessBatch embeds all chunks in a single call and writes them back with
// their new, normalized vectors.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	err := retry.WithBackoff(ctx, func() error {
		var embedErr error
		vectors, embedErr = bp.embedder.EmbedTexts(ctx, texts)
		return embedErr
	}, bp.maxRetries, bp.retryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingCountMismatch, len(vectors), len(chunks))
	}

	for i, chunk := range chunks {
		vector := vectors[i]
		if bp.dimension > 0 && len(vector) != bp.dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d", ErrDimensionMismatch, chunk.ID, len(vector), bp.dimension)
		}
		updated := *chunk
		updated.Vector = NormalizeVector(vector)
		if err := bp.store.UpsertChunk(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update chunk %s: %w", chunk.ID, err)
		}
	}

	return nil
}

// NormalizeVector scales v to unit length (L2 norm).
// Returns a new slice; a zero vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = val / norm
	}
	return normalized
}
