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


package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/retry"
	"github.com/poiesic/medrag/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// SemanticWeight scales vector similarity scores.
	SemanticWeight = 1.0

	// KeywordWeight scales full-text scores.
	KeywordWeight = 0.8

	// EntityLimit is the number of entities the entity channel returns.
	EntityLimit = 10

	// DefaultTopK is the number of chunks returned by default.
	DefaultTopK = 5

	// DefaultEmbedTimeout bounds one attempt at embedding the query.
	DefaultEmbedTimeout = 10 * time.Second

	// DefaultChannelTimeout bounds the store queries of one channel.
	DefaultChannelTimeout = 5 * time.Second
)

// Channel names reported in core.ChannelStatus.
const (
	ChannelVector  = "vector"
	ChannelKeyword = "keyword"
	ChannelEntity  = "entity"
	ChannelGraph   = "graph"
)

// Options controls a single retrieval.
type Options struct {
	TopK                int
	IncludeEntities     bool
	IncludeGraphContext bool
}

// DefaultOptions returns DefaultTopK chunks with entities and graph context.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, IncludeEntities: true, IncludeGraphContext: true}
}

// ConfidenceFunc scores a finished retrieval between 0 and 1.
type ConfidenceFunc func(rc *core.RAGContext) float32

// Retriever combines vector, keyword, entity and graph retrieval.
// A Retriever never writes to the store and is safe for concurrent use.
type Retriever struct {
	store          storage.Reader
	embedder       ai.Embedder
	confidence     ConfidenceFunc
	embedPolicy    retry.Policy
	channelTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithConfidence replaces DefaultConfidence.
func WithConfidence(fn ConfidenceFunc) Option {
	return func(r *Retriever) error {
		if fn != nil {
			r.confidence = fn
		}
		return nil
	}
}

// WithEmbedTimeout bounds each attempt at embedding the query.
func WithEmbedTimeout(timeout time.Duration) Option {
	return func(r *Retriever) error {
		r.embedPolicy.Timeout = timeout
		return nil
	}
}

// WithEmbedRetry replaces the query embedding retry policy.
func WithEmbedRetry(policy retry.Policy) Option {
	return func(r *Retriever) error {
		if policy.Attempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		if policy.Timeout == 0 {
			policy.Timeout = r.embedPolicy.Timeout
		}
		r.embedPolicy = policy
		return nil
	}
}

// WithChannelTimeout bounds the store queries of each channel.
// Zero leaves only the caller's deadline.
func WithChannelTimeout(timeout time.Duration) Option {
	return func(r *Retriever) error {
		r.channelTimeout = timeout
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(store storage.Reader, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		store:          store,
		embedder:       embedder,
		confidence:     DefaultConfidence,
		embedPolicy:    retry.Once(DefaultEmbedTimeout),
		channelTimeout: DefaultChannelTimeout,
		logger:         slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Retrieve builds the retrieval context for query.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*core.RAGContext, error) {
	return r.RetrieveWithMonitor(ctx, query, opts, nil)
}

// channelResult is written by exactly one channel goroutine.
type channelResult struct {
	status     core.ChannelStatus
	attempted  bool
	chunks     []core.ChunkHit
	entities   []core.EntityHit
	candidates []string
	paths      []string
}

// RetrieveWithMonitor is Retrieve with callbacks for each stage.
//
// Failed channels contribute nothing. An error is returned only when ctx is
// done, or when every attempted channel failed and at least one failure was
// storage.ErrUnavailable.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, opts Options, monitor Monitor) (*core.RAGContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if opts.TopK <= 0 {
		return nil, ErrInvalidTopK
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)
	start := time.Now()

	var vector, keyword, entity, graph channelResult
	g, gctx := errgroup.WithContext(ctx)

	r.run(gctx, g, &vector, ChannelVector, true, func(ctx context.Context, res *channelResult) error {
		return r.semanticChannel(ctx, query, opts.TopK, res)
	})
	r.run(gctx, g, &keyword, ChannelKeyword, true, func(ctx context.Context, res *channelResult) error {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		hits, err := r.store.KeywordSearch(ctx, query, opts.TopK)
		res.chunks = hits
		res.status.Results = len(hits)
		return err
	})
	r.run(gctx, g, &entity, ChannelEntity, opts.IncludeEntities, func(ctx context.Context, res *channelResult) error {
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		hits, err := r.store.EntitySearch(ctx, query, EntityLimit)
		res.entities = hits
		res.status.Results = len(hits)
		return err
	})
	graphCandidates := Candidates(query)
	r.run(gctx, g, &graph, ChannelGraph, opts.IncludeGraphContext && len(graphCandidates) > 0, func(ctx context.Context, res *channelResult) error {
		res.candidates = graphCandidates
		return r.graphChannel(ctx, graphCandidates, res)
	})

	// Channels absorb their own errors; Wait only synchronizes.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	monitor.AfterSemanticSearch(vector.chunks)
	monitor.AfterKeywordSearch(keyword.chunks)
	if entity.attempted {
		monitor.AfterEntitySearch(entity.entities)
	}
	if graph.attempted {
		monitor.AfterGraphTraversal(graph.candidates, graph.paths)
	}

	rc := &core.RAGContext{Query: query}
	var errs []error
	attempted, failed, unavailable := 0, 0, false
	for _, res := range []*channelResult{&vector, &keyword, &entity, &graph} {
		if !res.attempted {
			continue
		}
		attempted++
		rc.Channels = append(rc.Channels, res.status)
		if res.status.Err != nil {
			failed++
			unavailable = unavailable || errors.Is(res.status.Err, storage.ErrUnavailable)
			errs = append(errs, fmt.Errorf("%s: %w", res.status.Name, res.status.Err))
			monitor.ChannelFailed(res.status)
			r.logger.Warn("retrieval channel failed", "channel", res.status.Name, "err", res.status.Err)
		}
	}
	if attempted > 0 && failed == attempted && unavailable {
		return nil, fmt.Errorf("retrieve: %w", errors.Join(errs...))
	}

	rc.Chunks = merge(vector.chunks, keyword.chunks, opts.TopK)
	for _, c := range rc.Chunks {
		rc.TotalScore += c.Score
	}
	rc.Entities = entity.entities
	rc.GraphPaths = graph.paths
	rc.Confidence = r.confidence(rc)

	r.logger.Debug("retrieved context",
		"chunks", len(rc.Chunks),
		"entities", len(rc.Entities),
		"paths", len(rc.GraphPaths),
		"elapsed", time.Since(start))
	monitor.Finish(rc)
	return rc, nil
}

// run starts an enabled channel and records its status.
func (r *Retriever) run(ctx context.Context, g *errgroup.Group, res *channelResult, name string, enabled bool, fn func(ctx context.Context, res *channelResult) error) {
	res.status.Name = name
	if !enabled {
		return
	}
	res.attempted = true
	g.Go(func() error {
		start := time.Now()
		err := fn(ctx, res)
		res.status.Elapsed = time.Since(start)
		if err != nil {
			res.chunks, res.entities, res.paths = nil, nil, nil
			res.status.Results = 0
			res.status.Err = err
		}
		return nil
	})
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.channelTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.channelTimeout)
}

func (r *Retriever) semanticChannel(ctx context.Context, query string, topK int, res *channelResult) error {
	vector, err := retry.Value(ctx, r.embedPolicy, func(ctx context.Context) ([]float32, error) {
		return r.embedder.EmbedText(ctx, query)
	})
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return ai.ErrEmptyEmbedding
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	hits, err := r.store.VectorSearch(ctx, vector, topK)
	if err != nil {
		return err
	}
	res.chunks = hits
	res.status.Results = len(hits)
	return nil
}

func (r *Retriever) graphChannel(ctx context.Context, candidates []string, res *channelResult) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	paths, err := r.store.SymptomToDiseasePaths(ctx, candidates)
	if err != nil {
		return err
	}
	flags, err := r.store.RedFlagsFor(ctx, candidates)
	if err != nil {
		return err
	}

	for _, p := range paths {
		res.paths = append(res.paths, fmt.Sprintf("Symptoms [%s] may indicate %s", strings.Join(p.Symptoms, ", "), p.Disease))
	}
	for _, f := range flags {
		res.paths = append(res.paths, fmt.Sprintf("RED FLAG: %s - %s", f.Name, f.Description))
	}
	res.status.Results = len(res.paths)
	return nil
}

// merge combines vector and keyword hits by chunk id. Vector hits come first
// and the first occurrence of a chunk keeps its score. The result is sorted by
// score, ties keeping first-seen order, and truncated to topK.
func merge(semantic, keyword []core.ChunkHit, topK int) []core.ScoredChunk {
	merged := make([]core.ScoredChunk, 0, len(semantic)+len(keyword))
	positions := make(map[string]int, len(semantic)+len(keyword))

	add := func(hits []core.ChunkHit, weight float32, method string) {
		for _, hit := range hits {
			if hit.Chunk == nil {
				continue
			}
			if i, ok := positions[hit.Chunk.ID]; ok {
				if !merged[i].HasMethod(method) {
					merged[i].Methods = append(merged[i].Methods, method)
				}
				continue
			}
			positions[hit.Chunk.ID] = len(merged)
			merged = append(merged, core.ScoredChunk{
				Chunk:   hit.Chunk,
				Score:   hit.Score * weight,
				Methods: []string{method},
			})
		}
	}
	add(semantic, SemanticWeight, core.MethodSemantic)
	add(keyword, KeywordWeight, core.MethodKeyword)

	slices.SortStableFunc(merged, func(a, b core.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// DefaultConfidence starts from 0.3 plus 0.1 per matched entity (0.2 without
// entities), capped at 1, and scales it by the share of attempted channels
// that succeeded. An empty context scores 0.
func DefaultConfidence(rc *core.RAGContext) float32 {
	if len(rc.Chunks) == 0 && len(rc.Entities) == 0 && len(rc.GraphPaths) == 0 {
		return 0
	}

	base := float32(0.2)
	if len(rc.Entities) > 0 {
		base = min(1, 0.3+0.1*float32(len(rc.Entities)))
	}

	if len(rc.Channels) == 0 {
		return base
	}
	ok := 0
	for _, c := range rc.Channels {
		if c.OK() {
			ok++
		}
	}
	return base * float32(ok) / float32(len(rc.Channels))
}
