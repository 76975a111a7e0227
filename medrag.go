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


package medrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/ingestion"
	"github.com/poiesic/medrag/loader"
	"github.com/poiesic/medrag/reembed"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/search"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/watch"
)

// DefaultSourceName names documents ingested from text without a name.
const DefaultSourceName = "inline"

// Source is a document to ingest: a file path or literal text.
// Path takes precedence when both are set.
type Source struct {
	Path     string
	Text     string
	Name     string
	Metadata map[string]string
}

// IngestResult summarizes one IngestDocument call.
type IngestResult struct {
	DocumentID           string
	ChunkCount           int
	EntitiesCreated      int
	RelationshipsCreated int
	Timestamp            time.Time
	Stats                *core.IngestStats
}

// Answer is a completion grounded in retrieved context.
type Answer struct {
	Text    string
	Context *core.RAGContext
}

// Service is the long-lived entry point of medrag. Construct one per process
// and share it; all methods are safe for concurrent use.
type Service struct {
	store     storage.GraphStore
	provider  ai.AIProvider
	schema    *schema.Schema
	pipeline  *ingestion.Pipeline
	batch     *ingestion.BatchIngester
	retriever *search.Retriever
	ingest    ingestion.Options
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger        *slog.Logger
	schema        *schema.Schema
	pipelineOpts  []ingestion.Option
	retrieverOpts []search.Option
	workers       int
	ingest        ingestion.Options
}

// WithLogger sets the logger used by the service and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchema sets the schema extraction output is filtered through.
// It must match the schema the store was opened with.
func WithSchema(s *schema.Schema) Option {
	return func(o *serviceOptions) {
		if s != nil {
			o.schema = s
		}
	}
}

// WithPipelineOptions passes options to the ingestion pipeline.
func WithPipelineOptions(opts ...ingestion.Option) Option {
	return func(o *serviceOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithRetrieverOptions passes options to the hybrid retriever.
func WithRetrieverOptions(opts ...search.Option) Option {
	return func(o *serviceOptions) {
		o.retrieverOpts = append(o.retrieverOpts, opts...)
	}
}

// WithWorkers sets the number of documents ingested concurrently by
// IngestDir. Zero picks a size from the CPU count.
func WithWorkers(n int) Option {
	return func(o *serviceOptions) {
		o.workers = n
	}
}

// WithIngestDefaults sets the options used for documents picked up by a
// watcher. Default is ingestion.DefaultOptions().
func WithIngestDefaults(opts ingestion.Options) Option {
	return func(o *serviceOptions) {
		o.ingest = opts
	}
}

// New creates a Service over store and provider. The service takes
// ownership of both and closes them in Close.
func New(store storage.GraphStore, provider ai.AIProvider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	options := &serviceOptions{
		logger: slog.Default(),
		schema: schema.Medical,
		ingest: ingestion.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	pipelineOpts := append([]ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithSchema(options.schema),
	}, options.pipelineOpts...)
	pipeline, err := ingestion.NewPipeline(store, provider.Embedder(), provider.Extractor(), pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	batchOpts := []ingestion.BatchOption{ingestion.WithBatchLogger(logger)}
	if options.workers > 0 {
		batchOpts = append(batchOpts, ingestion.WithPoolSize(options.workers))
	}
	batch, err := ingestion.NewBatchIngester(pipeline, batchOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating batch ingester: %w", err)
	}

	retrieverOpts := append([]search.Option{search.WithLogger(logger)}, options.retrieverOpts...)
	retriever, err := search.NewRetriever(store, provider.Embedder(), retrieverOpts...)
	if err != nil {
		batch.Release()
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	return &Service{
		store:     store,
		provider:  provider,
		schema:    options.schema,
		pipeline:  pipeline,
		batch:     batch,
		retriever: retriever,
		ingest:    options.ingest,
		logger:    logger.With("component", "medrag"),
	}, nil
}

// Store returns the underlying graph store.
func (s *Service) Store() storage.GraphStore {
	return s.store
}

// Schema returns the schema in use.
func (s *Service) Schema() *schema.Schema {
	return s.schema
}

// SetupSchema creates the store's indexes for vectors of the given length.
// A dimension of zero or less is probed from the embedder. It is safe to
// call on every start.
func (s *Service) SetupSchema(ctx context.Context, dimension int) (int, error) {
	if dimension <= 0 {
		probed, err := ai.ProbeDimension(ctx, s.provider.Embedder())
		if err != nil {
			return 0, fmt.Errorf("probing embedding dimension: %w", err)
		}
		dimension = probed
	}
	if err := s.store.EnsureSchema(ctx, dimension); err != nil {
		return 0, err
	}
	return dimension, nil
}

// IngestDocument loads src and writes it through the ingestion pipeline.
// A file is identified by its name and text by its content, so ingesting
// the same source twice updates rather than duplicates it.
// A cancelled ingestion returns the partial result along with the error.
func (s *Service) IngestDocument(ctx context.Context, src Source, opts ingestion.Options) (*IngestResult, error) {
	doc, err := s.load(ctx, src)
	if err != nil {
		return nil, err
	}

	stats, err := s.pipeline.Ingest(ctx, *doc, opts)
	if stats == nil {
		return nil, err
	}
	return newIngestResult(stats), err
}

func (s *Service) load(ctx context.Context, src Source) (*ingestion.Document, error) {
	var doc *ingestion.Document
	switch {
	case src.Path != "":
		loaded, err := loader.Load(ctx, src.Path)
		if err != nil {
			return nil, err
		}
		doc = loaded
	case src.Text != "":
		doc = &ingestion.Document{Name: DefaultSourceName, Text: src.Text}
	default:
		return nil, ErrEmptySource
	}

	if src.Name != "" {
		doc.Name = src.Name
	}
	if len(src.Metadata) > 0 {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string, len(src.Metadata))
		}
		maps.Copy(doc.Metadata, src.Metadata)
	}
	return doc, nil
}

func newIngestResult(stats *core.IngestStats) *IngestResult {
	return &IngestResult{
		DocumentID:           stats.DocumentID,
		ChunkCount:           stats.ChunksStored,
		EntitiesCreated:      stats.EntitiesCreated,
		RelationshipsCreated: stats.RelationshipsCreated,
		Timestamp:            time.Now().UTC(),
		Stats:                stats,
	}
}

// IngestDir ingests every .txt and .md file under dir concurrently.
// Files that cannot be loaded are returned as failures; files that fail
// to ingest carry their error in the results.
func (s *Service) IngestDir(ctx context.Context, dir string, opts ingestion.Options) (ingestion.Results, []loader.Failure, error) {
	docs, failures, err := loader.Dir(ctx, dir)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range failures {
		s.logger.Warn("skipping file", "path", f.Path, "error", f.Err)
	}
	return s.batch.IngestAll(ctx, docs, opts), failures, nil
}

// Query retrieves the fused context for text.
func (s *Service) Query(ctx context.Context, text string, opts search.Options) (*core.RAGContext, error) {
	return s.retriever.Retrieve(ctx, text, opts)
}

// QueryWithMonitor is Query with retrieval callbacks.
func (s *Service) QueryWithMonitor(ctx context.Context, text string, opts search.Options, monitor search.Monitor) (*core.RAGContext, error) {
	return s.retriever.RetrieveWithMonitor(ctx, text, opts, monitor)
}

// Answer retrieves context for question and asks the completion chain to
// answer from it.
func (s *Service) Answer(ctx context.Context, question string, opts search.Options) (*Answer, error) {
	completer := s.provider.Completer()
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	rc, err := s.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	prompt := ai.BuildAnswerPrompt(search.FormatContext(rc), question)
	text, err := completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completing answer: %w", err)
	}
	return &Answer{Text: text, Context: rc}, nil
}

// PossibleConditions ranks diseases linked to the given symptoms.
func (s *Service) PossibleConditions(ctx context.Context, symptoms []string) ([]core.Condition, error) {
	return search.PossibleConditions(ctx, s.store, symptoms)
}

// RedFlags returns the red flags reachable from the given symptoms.
func (s *Service) RedFlags(ctx context.Context, symptoms []string) ([]string, error) {
	return search.RedFlags(ctx, s.store, symptoms)
}

// DrugInteractions checks every pair of drugs for a known interaction.
func (s *Service) DrugInteractions(ctx context.Context, drugs []string) ([]core.DrugInteraction, error) {
	return search.Interactions(ctx, s.store, drugs)
}

// DiseaseDetails returns the symptoms, treatments and red flags of a disease.
func (s *Service) DiseaseDetails(ctx context.Context, disease string) (*core.DiseaseDetails, error) {
	return s.store.DiseaseDetails(ctx, disease)
}

// Stats summarizes the contents of the store.
func (s *Service) Stats(ctx context.Context) (*core.GraphStats, error) {
	return s.store.Stats(ctx)
}

// Purge deletes a document and its chunks. Entities are kept.
func (s *Service) Purge(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("purged document", "document", documentID)
	return nil
}

// Reembed recomputes every chunk vector with the current embedder.
func (s *Service) Reembed(ctx context.Context, config *reembed.Config, progress io.Writer) (int, error) {
	r, err := reembed.NewReembedder(s.store, s.provider.Embedder(), config, progress)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// NewWatcher returns a watcher that ingests files with the service's
// default ingestion options. Call Add for each directory, then Run.
func (s *Service) NewWatcher(opts ...watch.Option) (*watch.Watcher, error) {
	opts = append([]watch.Option{watch.WithLogger(s.logger)}, opts...)
	return watch.New(func(ctx context.Context, doc *ingestion.Document) error {
		stats, err := s.pipeline.Ingest(ctx, *doc, s.ingest)
		if err != nil {
			return err
		}
		s.logger.Debug("watched document ingested",
			"document", stats.DocumentID,
			"chunks", stats.ChunksStored,
			"entities", stats.EntitiesCreated)
		return nil
	}, opts...)
}

// Close releases the worker pool, the AI provider and the store.
func (s *Service) Close(ctx context.Context) error {
	s.batch.Release()

	var errs []error
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := s.store.Close(ctx); err != nil {
		s.logger.Error("error closing graph store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
