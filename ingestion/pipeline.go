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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/chunker"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/retry"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"golang.org/x/time/rate"
)

const (
	// DefaultExtractionBudget is the number of chunks per document sent to the extractor.
	DefaultExtractionBudget = 10

	// DefaultEmbedTimeout bounds a single embedding attempt.
	DefaultEmbedTimeout = 30 * time.Second

	// DefaultExtractTimeout bounds a single extraction attempt.
	DefaultExtractTimeout = 120 * time.Second

	// SourceMetadataKey holds the document name on every chunk.
	SourceMetadataKey = "source"

	// rawTypeProperty keeps the extractor's type when the schema mapped it to a fallback.
	rawTypeProperty = "type"
)

// Document is a plain-text document to ingest.
type Document struct {
	// ID identifies the document. When empty it is derived from Text.
	ID       string
	Name     string
	Text     string
	Metadata map[string]string
}

// Options controls a single ingestion.
type Options struct {
	// ExtractEntities enables entity and relationship extraction.
	ExtractEntities bool

	// ExtractionBudget caps the number of chunks sent to the extractor.
	// Zero disables extraction; a negative budget extracts every chunk.
	ExtractionBudget int
}

// DefaultOptions extracts entities from the first DefaultExtractionBudget chunks.
func DefaultOptions() Options {
	return Options{ExtractEntities: true, ExtractionBudget: DefaultExtractionBudget}
}

// Pipeline writes documents into a graph store.
// A Pipeline holds no per-document state and is safe for concurrent use.
type Pipeline struct {
	store         storage.GraphStore
	embedder      ai.Embedder
	extractor     ai.Extractor
	schema        *schema.Schema
	chunker       *chunker.Chunker
	dimension     int
	embedPolicy   retry.Policy
	extractPolicy retry.Policy
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithSchema sets the schema entities and relationships are filtered through.
// Default is schema.Medical.
func WithSchema(s *schema.Schema) Option {
	return func(p *Pipeline) error {
		if s != nil {
			p.schema = s
		}
		return nil
	}
}

// WithChunker sets the chunker. Default is chunker.New() with default size and overlap.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithDimension sets the expected embedding length. Vectors of any other
// length are discarded. Zero accepts any length and leaves the check to the store.
func WithDimension(dimension int) Option {
	return func(p *Pipeline) error {
		if dimension < 0 {
			return fmt.Errorf("invalid dimension %d", dimension)
		}
		p.dimension = dimension
		return nil
	}
}

// WithEmbedTimeout bounds each embedding attempt.
func WithEmbedTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		p.embedPolicy.Timeout = timeout
		return nil
	}
}

// WithExtractTimeout bounds each extraction attempt.
func WithExtractTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		p.extractPolicy.Timeout = timeout
		return nil
	}
}

// WithRetryPolicy replaces the retry policy of both AI services.
// Per-attempt timeouts already configured are kept when the policy has none.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if policy.Attempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		embedTimeout, extractTimeout := p.embedPolicy.Timeout, p.extractPolicy.Timeout
		p.embedPolicy, p.extractPolicy = policy, policy
		if policy.Timeout == 0 {
			p.embedPolicy.Timeout = embedTimeout
			p.extractPolicy.Timeout = extractTimeout
		}
		p.extractPolicy.Retryable = extractionRetryable(policy.Retryable)
		return nil
	}
}

// WithExtractionRate limits extraction calls to perSecond, shared by all
// documents going through the pipeline. Zero removes the limit.
func WithExtractionRate(perSecond float64) Option {
	return func(p *Pipeline) error {
		if perSecond < 0 {
			return fmt.Errorf("invalid extraction rate %v", perSecond)
		}
		if perSecond == 0 {
			p.limiter = nil
			return nil
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
// extractor may be nil when documents are always ingested without extraction.
func NewPipeline(store storage.GraphStore, embedder ai.Embedder, extractor ai.Extractor, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c, err := chunker.New()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:         store,
		embedder:      embedder,
		extractor:     extractor,
		schema:        schema.Medical,
		chunker:       c,
		embedPolicy:   retry.Once(DefaultEmbedTimeout),
		extractPolicy: retry.Once(DefaultExtractTimeout),
		logger:        slog.Default(),
	}
	p.extractPolicy.Retryable = extractionRetryable(nil)

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Schema returns the schema the pipeline filters extractions through.
func (p *Pipeline) Schema() *schema.Schema {
	return p.schema
}

// Ingest stores doc with its chunks and, if requested, the entities and
// relationships extracted from them.
//
// Only a failure to store the document is returned as an error. When ctx is
// cancelled the stats gathered so far are returned together with ctx.Err().
func (p *Pipeline) Ingest(ctx context.Context, doc Document, opts Options) (*core.IngestStats, error) {
	if doc.Text == "" {
		return nil, fmt.Errorf("document %q: %w", doc.Name, core.ErrEmptyContent)
	}
	if opts.ExtractEntities && opts.ExtractionBudget != 0 && p.extractor == nil {
		return nil, ErrExtractorRequired
	}

	id := doc.ID
	if id == "" {
		id = core.DocumentID(doc.Text)
	}
	stats := &core.IngestStats{DocumentID: id}
	logger := p.logger.With("run", uuid.NewString(), "document", id)

	start := time.Now()
	logger.Info("ingesting document", "name", doc.Name, "bytes", len(doc.Text))

	err := p.store.UpsertDocument(ctx, &core.Document{
		ID:         id,
		Name:       doc.Name,
		Size:       len(doc.Text),
		Metadata:   doc.Metadata,
		IngestedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("error storing document", "err", err)
		return nil, fmt.Errorf("store document %s: %w", id, err)
	}

	segments := p.chunker.Split(doc.Text)
	stats.Chunks = len(segments)

	attempted := 0
	for i, text := range segments {
		if err := ctx.Err(); err != nil {
			logger.Warn("ingestion cancelled", "chunks_done", i, "chunks", len(segments))
			return stats, err
		}

		chunk := &core.Chunk{
			ID:         core.ChunkID(id, i),
			DocumentID: id,
			Index:      i,
			Text:       text,
		}
		if doc.Name != "" {
			chunk.Metadata = map[string]string{SourceMetadataKey: doc.Name}
		}

		chunk.Vector = p.embed(ctx, logger, chunk, stats)
		if !p.storeChunk(ctx, logger, chunk, stats) {
			continue
		}

		if !opts.ExtractEntities || (opts.ExtractionBudget >= 0 && attempted >= opts.ExtractionBudget) {
			continue
		}
		attempted++

		extraction, err := p.extract(ctx, chunk.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.ExtractionFailures++
			logger.Warn("extraction failed", "chunk", chunk.ID, "err", err)
			continue
		}
		stats.ChunksExtracted++

		if err := p.apply(ctx, logger, chunk.ID, extraction, stats); err != nil {
			return stats, err
		}
	}

	// An edited document may have fewer chunks than the stored version.
	pruned, err := p.store.PruneChunks(ctx, id, len(segments))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		logger.Warn("error pruning stale chunks", "err", err)
	}
	stats.ChunksPruned = pruned

	logger.Info("document ingested",
		"chunks", stats.Chunks,
		"pruned", stats.ChunksPruned,
		"stored", stats.ChunksStored,
		"embedded", stats.ChunksEmbedded,
		"entities", stats.EntitiesCreated,
		"relationships", stats.RelationshipsCreated,
		"elapsed", time.Since(start))
	return stats, nil
}

// embed returns the chunk vector or nil if none could be produced.
func (p *Pipeline) embed(ctx context.Context, logger *slog.Logger, chunk *core.Chunk, stats *core.IngestStats) []float32 {
	vector, err := retry.Value(ctx, p.embedPolicy, func(ctx context.Context) ([]float32, error) {
		v, err := p.embedder.EmbedText(ctx, chunk.Text)
		if err == nil && len(v) == 0 {
			err = ai.ErrEmptyEmbedding
		}
		return v, err
	})
	if err != nil {
		if ctx.Err() == nil {
			stats.EmbeddingFailures++
			logger.Warn("embedding failed, storing chunk without vector", "chunk", chunk.ID, "err", err)
		}
		return nil
	}
	if p.dimension > 0 && len(vector) != p.dimension {
		stats.EmbeddingFailures++
		logger.Warn("storing chunk without vector", "chunk", chunk.ID,
			"err", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), p.dimension))
		return nil
	}
	return vector
}

// storeChunk writes the chunk and reports whether it is in the store.
func (p *Pipeline) storeChunk(ctx context.Context, logger *slog.Logger, chunk *core.Chunk, stats *core.IngestStats) bool {
	err := p.store.UpsertChunk(ctx, chunk)
	if errors.Is(err, storage.ErrDimensionMismatch) && chunk.Vector != nil {
		logger.Warn("store rejected vector, storing chunk without it", "chunk", chunk.ID,
			"err", fmt.Errorf("%w: %w", ErrDimensionMismatch, err))
		stats.EmbeddingFailures++
		chunk.Vector = nil
		err = p.store.UpsertChunk(ctx, chunk)
	}
	if err != nil {
		stats.ChunkFailures++
		logger.Error("error storing chunk", "chunk", chunk.ID, "err", err)
		return false
	}
	stats.ChunksStored++
	if chunk.Vector != nil {
		stats.ChunksEmbedded++
	}
	return true
}

func (p *Pipeline) extract(ctx context.Context, text string) (*ai.Extraction, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return retry.Value(ctx, p.extractPolicy, func(ctx context.Context) (*ai.Extraction, error) {
		return p.extractor.Extract(ctx, text)
	})
}

// apply writes the entities and relationships of one extraction.
// It returns an error only when ctx is done.
func (p *Pipeline) apply(ctx context.Context, logger *slog.Logger, chunkID string, extraction *ai.Extraction, stats *core.IngestStats) error {
	if extraction.Empty() {
		return nil
	}

	byID := make(map[string]core.EntityKey, len(extraction.Entities))
	byName := make(map[string]core.EntityKey, len(extraction.Entities))

	for _, extracted := range extraction.Entities {
		if err := ctx.Err(); err != nil {
			return err
		}

		entity, ok := p.resolveEntity(extracted)
		if !ok {
			stats.EntitiesDropped++
			logger.Debug("entity dropped by schema", "type", extracted.Type, "name", extracted.Name)
			continue
		}

		if err := p.store.UpsertEntity(ctx, entity); err != nil {
			if errors.Is(err, storage.ErrUnknownLabel) || errors.Is(err, core.ErrInvalidEntity) {
				stats.EntitiesDropped++
				continue
			}
			logger.Warn("error storing entity", "entity", entity.Key().Tuple(), "err", err)
			continue
		}
		stats.EntitiesCreated++

		key := entity.Key()
		if extracted.ID != "" {
			byID[extracted.ID] = key
		}
		byName[entity.Name] = key

		if err := p.store.LinkMention(ctx, key, chunkID); err != nil {
			logger.Warn("error linking mention", "entity", key.Tuple(), "chunk", chunkID, "err", err)
		}
	}

	resolve := func(ref string) (core.EntityKey, bool) {
		if key, ok := byID[ref]; ok {
			return key, true
		}
		key, ok := byName[core.NormalizeName(ref)]
		return key, ok
	}

	for _, extracted := range extraction.Relationships {
		if err := ctx.Err(); err != nil {
			return err
		}

		relType, mapped, ok := p.schema.RelationshipType(extracted.Type)
		if !ok {
			stats.RelationshipsDropped++
			logger.Debug("relationship dropped by schema", "type", extracted.Type)
			continue
		}

		source, okSource := resolve(extracted.Source)
		target, okTarget := resolve(extracted.Target)
		if !okSource || !okTarget {
			stats.DanglingRelationships++
			logger.Debug("dangling relationship", "source", extracted.Source, "target", extracted.Target, "type", relType)
			continue
		}

		rel := &core.Relationship{
			Source:     source,
			Target:     target,
			Type:       relType,
			Properties: copyProperties(extracted.Properties),
		}
		if mapped {
			rel.Properties = withRawType(rel.Properties, extracted.Type)
		}

		linked, err := p.store.UpsertRelationship(ctx, rel)
		switch {
		case errors.Is(err, storage.ErrUnknownLabel):
			stats.RelationshipsDropped++
		case err != nil:
			logger.Warn("error storing relationship", "source", source.Tuple(), "target", target.Tuple(), "err", err)
		case !linked:
			stats.DanglingRelationships++
		default:
			stats.RelationshipsCreated++
		}
	}
	return nil
}

// resolveEntity maps an extracted entity onto a schema label.
func (p *Pipeline) resolveEntity(extracted ai.ExtractedEntity) (*core.Entity, bool) {
	name := core.NormalizeName(extracted.Name)
	if name == "" {
		return nil, false
	}
	label, mapped, ok := p.schema.EntityLabel(extracted.Type)
	if !ok {
		return nil, false
	}

	entity := &core.Entity{
		Type:        label,
		Name:        name,
		Description: extracted.Description,
		Properties:  copyProperties(extracted.Properties),
	}
	if mapped {
		entity.Properties = withRawType(entity.Properties, extracted.Type)
	}
	return entity, true
}

// extractionRetryable never retries a reply that could not be parsed.
func extractionRetryable(next func(error) bool) func(error) bool {
	return func(err error) bool {
		if errors.Is(err, ai.ErrMalformedExtraction) {
			return false
		}
		return next == nil || next(err)
	}
}

func copyProperties(props map[string]string) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func withRawType(props map[string]string, raw string) map[string]string {
	if props == nil {
		props = make(map[string]string, 1)
	}
	props[rawTypeProperty] = raw
	return props
}
