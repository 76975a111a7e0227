package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer turns a prompt into generated text.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends prompt to a language model and returns its reply.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor pulls typed entities and relationships out of text.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract analyzes text and returns the entities and relationships it mentions.
	// Returns an empty Extraction if nothing is found.
	// Returns ErrMalformedExtraction if the model reply could not be decoded.
	Extract(ctx context.Context, text string) (*Extraction, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder, Extractor and Completer instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Extractor returns the entity extraction service.
	Extractor() Extractor

	// Completer returns the text completion service.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
