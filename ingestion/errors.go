package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a graph store is not provided.
	ErrStoreRequired = errors.New("graph store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrExtractorRequired is returned when entity extraction is requested
	// from a pipeline built without an extractor.
	ErrExtractorRequired = errors.New("extractor required for entity extraction")

	// ErrPipelineRequired is returned when a batch ingester is built without a pipeline.
	ErrPipelineRequired = errors.New("pipeline required")

	// ErrDimensionMismatch indicates an embedding whose length differs from the
	// configured vector index dimension. The chunk is stored without a vector.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
