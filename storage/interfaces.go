package storage

import (
	"context"

	"github.com/poiesic/medrag/core"
)

// Writer upserts the graph produced by ingestion.
// Every write is a MERGE: repeating it leaves the store unchanged.
type Writer interface {
	// UpsertDocument creates the document or merges its metadata into the existing one.
	UpsertDocument(ctx context.Context, doc *core.Document) error

	// UpsertChunk creates or replaces a chunk and links it to its document.
	// A nil vector keeps the stored vector only when the text is unchanged.
	// Changing the text removes the chunk's mention edges.
	UpsertChunk(ctx context.Context, chunk *core.Chunk) error

	// UpsertEntity merges an entity by (type, name). Properties are merged
	// key by key with the incoming value winning; a non-empty description replaces the old one.
	// Returns ErrUnknownLabel if the type is not an allowed label.
	UpsertEntity(ctx context.Context, entity *core.Entity) error

	// LinkMention records that an entity is mentioned in a chunk.
	LinkMention(ctx context.Context, entity core.EntityKey, chunkID string) error

	// UpsertRelationship merges a directed edge between two existing entities.
	// Returns false without error when either endpoint does not exist.
	UpsertRelationship(ctx context.Context, rel *core.Relationship) (bool, error)
}

// ChunkSearcher finds chunks by vector or by text.
type ChunkSearcher interface {
	// VectorSearch returns up to k chunks ordered by cosine similarity, highest first.
	// Chunks without a vector never match.
	VectorSearch(ctx context.Context, vector []float32, k int) ([]core.ChunkHit, error)

	// KeywordSearch returns up to k chunks ordered by full-text relevance.
	KeywordSearch(ctx context.Context, text string, k int) ([]core.ChunkHit, error)

	// EntitySearch matches entity names and descriptions.
	EntitySearch(ctx context.Context, text string, k int) ([]core.EntityHit, error)
}

// GraphReader answers typed traversals over the medical graph.
type GraphReader interface {
	// SymptomToDiseasePaths groups the diseases reachable from symptoms whose
	// name contains one of the given phrases, most matched symptoms first.
	SymptomToDiseasePaths(ctx context.Context, symptoms []string) ([]core.DiseasePath, error)

	// RedFlagsFor returns the red flags reachable from the matching symptoms.
	RedFlagsFor(ctx context.Context, symptoms []string) ([]core.RedFlag, error)

	// DiseaseDetails returns the neighbourhood of a disease.
	// Returns ErrNotFound if no disease has that name.
	DiseaseDetails(ctx context.Context, disease string) (*core.DiseaseDetails, error)

	// DrugInteractions lists INTERACTS_WITH edges between the named drugs.
	// An empty drugB lists every interaction of drugA.
	DrugInteractions(ctx context.Context, drugA, drugB string) ([]core.DrugInteraction, error)

	// RelatedEntities lists the neighbours of an entity over any relationship.
	RelatedEntities(ctx context.Context, key core.EntityKey, limit int) ([]core.RelatedEntity, error)
}

// Reader is the read-only side used by retrieval.
type Reader interface {
	ChunkSearcher
	GraphReader
}

// GraphStore is the narrow contract between medrag and its graph engine.
// Implementations must be safe for concurrent use.
type GraphStore interface {
	Writer
	Reader

	// EnsureSchema creates constraints and indexes. It is idempotent.
	EnsureSchema(ctx context.Context, dimension int) error

	// Document returns a stored document or ErrNotFound.
	Document(ctx context.Context, id string) (*core.Document, error)

	// Entity returns a stored entity or ErrNotFound.
	Entity(ctx context.Context, key core.EntityKey) (*core.Entity, error)

	// Chunks pages through all chunks in id order, starting after the given id.
	Chunks(ctx context.Context, after string, limit int) ([]*core.Chunk, error)

	// DeleteDocument removes a document with its chunks and their mentions.
	// Entities and relationships are kept.
	DeleteDocument(ctx context.Context, id string) error

	// PruneChunks removes the chunks of a document with index keep or higher
	// and their mentions, returning how many were removed.
	PruneChunks(ctx context.Context, documentID string, keep int) (int, error)

	// Stats counts nodes per label and edges per relationship type.
	Stats(ctx context.Context) (*core.GraphStats, error)

	// Ping verifies that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
