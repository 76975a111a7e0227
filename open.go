package medrag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/medrag/ai/langchain"
	"github.com/poiesic/medrag/chunker"
	"github.com/poiesic/medrag/config"
	"github.com/poiesic/medrag/ingestion"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/search"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/storage/badger"
	"github.com/poiesic/medrag/storage/neo4j"
)

// OpenStore opens the graph store selected by cfg.
func OpenStore(ctx context.Context, cfg *config.Config, s *schema.Schema) (storage.GraphStore, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		if cfg.Store.InMemory {
			return badger.NewMemoryStore(s)
		}
		return badger.NewStore(cfg.Store.Path, s)
	case config.BackendNeo4j:
		return neo4j.NewStore(ctx, neo4j.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		}, s)
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store.Backend)
}

// ConfigOptions translates cfg into service options.
func ConfigOptions(cfg *config.Config, s *schema.Schema, logger *slog.Logger) ([]Option, error) {
	c, err := chunker.New(chunker.WithSize(cfg.Chunking.Size), chunker.WithOverlap(cfg.Chunking.Overlap))
	if err != nil {
		return nil, err
	}

	return []Option{
		WithLogger(logger),
		WithSchema(s),
		WithWorkers(cfg.Ingestion.Workers),
		WithIngestDefaults(cfg.IngestOptions()),
		WithPipelineOptions(
			ingestion.WithChunker(c),
			ingestion.WithDimension(cfg.AI.EmbeddingDimension),
			ingestion.WithEmbedTimeout(cfg.Ingestion.EmbedTimeout),
			ingestion.WithExtractTimeout(cfg.Ingestion.ExtractTimeout),
			ingestion.WithExtractionRate(cfg.Ingestion.ExtractionRate),
		),
		WithRetrieverOptions(
			search.WithEmbedTimeout(cfg.Retrieval.EmbedTimeout),
			search.WithChannelTimeout(cfg.Retrieval.ChannelTimeout),
		),
	}, nil
}

// NewFromConfig validates cfg, opens the store and the langchain-backed AI
// provider and builds a Service over them.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := cfg.SchemaPreset()
	if err != nil {
		return nil, err
	}
	opts, err := ConfigOptions(cfg, s, logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, s)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	provider, err := langchain.NewProvider(cfg.AIProviderConfig(), s)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("creating AI provider: %w", err)
	}

	svc, err := New(store, provider, opts...)
	if err != nil {
		provider.Close()
		store.Close(ctx)
		return nil, err
	}
	return svc, nil
}
