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


package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/text"
)

// Config holds connection settings for a Neo4j server.
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// runner executes one Cypher statement. Reads are routed to followers in a cluster.
type runner func(ctx context.Context, cypher string, params map[string]any, read bool) (*neo.EagerResult, error)

// Store implements storage.GraphStore over bolt.
type Store struct {
	driver    neo.DriverWithContext
	run       runner
	schema    *schema.Schema
	queries   *queries
	dimension atomic.Int64
	logger    *slog.Logger
}

var _ storage.GraphStore = (*Store)(nil)

// NewStore connects to Neo4j and verifies connectivity.
// A nil schema selects schema.Medical.
//
// Returns storage.GraphStore interface (not *Store) to enforce abstraction.
func NewStore(ctx context.Context, cfg Config, s *schema.Schema) (storage.GraphStore, error) {
	if cfg.URI == "" {
		return nil, ErrURIRequired
	}
	driver, err := neo.NewDriverWithContext(cfg.URI, neo.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, wrapError("connect", err)
	}

	database := cfg.Database
	store := newStore(func(ctx context.Context, cypher string, params map[string]any, read bool) (*neo.EagerResult, error) {
		opts := []neo.ExecuteQueryConfigurationOption{neo.ExecuteQueryWithDatabase(database)}
		if read {
			opts = append(opts, neo.ExecuteQueryWithReadersRouting())
		}
		return neo.ExecuteQuery(ctx, driver, cypher, params, neo.EagerResultTransformer, opts...)
	}, s)
	store.driver = driver
	store.logger.Info("connected to neo4j", "uri", cfg.URI, "database", database, "schema", store.schema.Name())
	return store, nil
}

func newStore(run runner, s *schema.Schema) *Store {
	if s == nil {
		s = schema.Medical
	}
	return &Store{
		run:     run,
		schema:  s,
		queries: newQueries(s),
		logger:  slog.Default().With("component", "neo4j-store"),
	}
}

func (s *Store) write(ctx context.Context, op, cypher string, params map[string]any) (*neo.EagerResult, error) {
	res, err := s.run(ctx, cypher, params, false)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return res, nil
}

func (s *Store) read(ctx context.Context, op, cypher string, params map[string]any) (*neo.EagerResult, error) {
	res, err := s.run(ctx, cypher, params, true)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return res, nil
}

// EnsureSchema creates constraints, full-text indexes and the vector index.
// An existing vector index with another dimension is reported as storage.ErrDimensionMismatch.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension)
	}
	for _, stmt := range s.queries.schemaStatements(dimension) {
		if _, err := s.write(ctx, "ensure schema", stmt, nil); err != nil {
			return err
		}
	}

	res, err := s.read(ctx, "ensure schema", vectorIndexOptionsQuery, nil)
	if err != nil {
		return err
	}
	for _, record := range res.Records {
		config := asMap(asMap(value(record, "options"))["indexConfig"])
		if existing := asInt(config["vector.dimensions"]); existing != 0 && existing != dimension {
			return fmt.Errorf("%w: index has %d, requested %d", storage.ErrDimensionMismatch, existing, dimension)
		}
	}

	s.dimension.Store(int64(dimension))
	s.logger.Info("schema ensured", "schema", s.schema.Name(), "dimension", dimension)
	return nil
}

// UpsertDocument merges a document node and its metadata.
func (s *Store) UpsertDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	_, err := s.write(ctx, "upsert document", mergeDocumentQuery, map[string]any{
		"id":          doc.ID,
		"name":        doc.Name,
		"size":        int64(doc.Size),
		"ingested_at": ingestedAt.UnixMicro(),
		"metadata":    metadataParam(doc.Metadata),
	})
	return err
}

// UpsertChunk merges a chunk and its FROM_DOCUMENT edge.
func (s *Store) UpsertChunk(ctx context.Context, chunk *core.Chunk) error {
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}
	if dim := int(s.dimension.Load()); dim > 0 && chunk.Vector != nil && len(chunk.Vector) != dim {
		return fmt.Errorf("%w: chunk %s has %d, index has %d", storage.ErrDimensionMismatch, chunk.ID, len(chunk.Vector), dim)
	}
	_, err := s.write(ctx, "upsert chunk", mergeChunkQuery, map[string]any{
		"id":          chunk.ID,
		"document_id": chunk.DocumentID,
		"chunk_index": int64(chunk.Index),
		"text":        chunk.Text,
		"embedding":   toParam(chunk.Vector),
		"metadata":    metadataParam(chunk.Metadata),
	})
	return err
}

// UpsertEntity merges an entity node keyed by its normalized name.
func (s *Store) UpsertEntity(ctx context.Context, entity *core.Entity) error {
	if err := core.ValidateEntity(entity); err != nil {
		return err
	}
	cypher, err := s.queries.mergeEntity(entity.Type)
	if err != nil {
		return err
	}
	_, err = s.write(ctx, "upsert entity", cypher, map[string]any{
		"name":        core.NormalizeName(entity.Name),
		"description": entity.Description,
		"properties":  stringMapParam(entity.Properties),
	})
	return err
}

// LinkMention merges a MENTIONED_IN edge. Missing endpoints make it a no-op.
func (s *Store) LinkMention(ctx context.Context, entity core.EntityKey, chunkID string) error {
	cypher, err := s.queries.linkMention(entity.Type)
	if err != nil {
		return err
	}
	_, err = s.write(ctx, "link mention", cypher, map[string]any{
		"name":     core.NormalizeName(entity.Name),
		"chunk_id": chunkID,
	})
	return err
}

// UpsertRelationship merges a typed edge between two existing entities.
func (s *Store) UpsertRelationship(ctx context.Context, rel *core.Relationship) (bool, error) {
	if err := core.ValidateRelationship(rel); err != nil {
		return false, err
	}
	cypher, err := s.queries.mergeRelationship(rel.Source.Type, rel.Type, rel.Target.Type)
	if err != nil {
		return false, err
	}
	res, err := s.write(ctx, "upsert relationship", cypher, map[string]any{
		"source":     core.NormalizeName(rel.Source.Name),
		"target":     core.NormalizeName(rel.Target.Name),
		"properties": stringMapParam(rel.Properties),
	})
	if err != nil {
		return false, err
	}
	for _, record := range res.Records {
		if asInt(value(record, "linked")) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// VectorSearch queries the chunk_embeddings index.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, k int) ([]core.ChunkHit, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: k=%d, vector length %d", storage.ErrInvalidQuery, k, len(vector))
	}
	if dim := int(s.dimension.Load()); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", storage.ErrDimensionMismatch, len(vector), dim)
	}
	res, err := s.read(ctx, "vector search", vectorSearchQuery, map[string]any{
		"k":         int64(k),
		"embedding": toParam(vector),
	})
	if err != nil {
		return nil, err
	}
	return chunkHits(res), nil
}

// KeywordSearch queries the chunk_text full-text index.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) ([]core.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", storage.ErrInvalidQuery, k)
	}
	lucene := luceneQuery(text.Tokenize(query))
	if lucene == "" {
		return nil, nil
	}
	res, err := s.read(ctx, "keyword search", keywordSearchQuery, map[string]any{
		"query": lucene,
		"k":     int64(k),
	})
	if err != nil {
		return nil, err
	}
	return chunkHits(res), nil
}

func chunkHits(res *neo.EagerResult) []core.ChunkHit {
	hits := make([]core.ChunkHit, 0, len(res.Records))
	for _, record := range res.Records {
		hits = append(hits, core.ChunkHit{
			Chunk: chunkFrom(record),
			Score: asFloat32(value(record, "score")),
		})
	}
	return hits
}

// EntitySearch queries the entity_search full-text index.
func (s *Store) EntitySearch(ctx context.Context, query string, k int) ([]core.EntityHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", storage.ErrInvalidQuery, k)
	}
	lucene := luceneQuery(text.Tokenize(query))
	if lucene == "" {
		return nil, nil
	}
	res, err := s.read(ctx, "entity search", entitySearchQuery, map[string]any{
		"query": lucene,
		"k":     int64(k),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]core.EntityHit, 0, len(res.Records))
	for _, record := range res.Records {
		label := schemaLabel(s.schema, asStrings(value(record, "labels")))
		hits = append(hits, core.EntityHit{
			Entity: entityFrom(label, asMap(value(record, "props"))),
			Score:  asFloat32(value(record, "score")),
		})
	}
	return hits, nil
}

// SymptomToDiseasePaths groups diseases connected to matching symptoms.
func (s *Store) SymptomToDiseasePaths(ctx context.Context, symptoms []string) ([]core.DiseasePath, error) {
	cypher := s.queries.diseasePaths()
	if cypher == "" || len(symptoms) == 0 {
		return nil, nil
	}
	res, err := s.read(ctx, "disease paths", cypher, map[string]any{"symptoms": stringsParam(symptoms)})
	if err != nil {
		return nil, err
	}
	paths := make([]core.DiseasePath, 0, len(res.Records))
	for _, record := range res.Records {
		paths = append(paths, core.DiseasePath{
			Disease:     asString(value(record, "disease")),
			Description: asString(value(record, "description")),
			Symptoms:    asStrings(value(record, "symptoms")),
			MatchCount:  asInt(value(record, "symptom_count")),
		})
	}
	return paths, nil
}

// RedFlagsFor returns red flags reachable from matching symptoms.
func (s *Store) RedFlagsFor(ctx context.Context, symptoms []string) ([]core.RedFlag, error) {
	cypher := s.queries.redFlags()
	if cypher == "" || len(symptoms) == 0 {
		return nil, nil
	}
	res, err := s.read(ctx, "red flags", cypher, map[string]any{"symptoms": stringsParam(symptoms)})
	if err != nil {
		return nil, err
	}
	flags := make([]core.RedFlag, 0, len(res.Records))
	for _, record := range res.Records {
		flags = append(flags, core.RedFlag{
			Name:        asString(value(record, "red_flag")),
			Description: asString(value(record, "description")),
			Symptoms:    asStrings(value(record, "symptoms")),
		})
	}
	return flags, nil
}

// DiseaseDetails returns the neighbourhood of a disease.
func (s *Store) DiseaseDetails(ctx context.Context, disease string) (*core.DiseaseDetails, error) {
	if !s.schema.HasLabel(schema.LabelDisease) {
		return nil, fmt.Errorf("%w: entity type %q", storage.ErrUnknownLabel, schema.LabelDisease)
	}
	res, err := s.read(ctx, "disease details", s.queries.diseaseDetails(), map[string]any{
		"disease": core.NormalizeName(disease),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, storage.ErrNotFound
	}
	record := res.Records[0]
	return &core.DiseaseDetails{
		Disease:     asString(value(record, "disease")),
		Description: asString(value(record, "description")),
		Symptoms:    asStrings(value(record, "symptoms")),
		Treatments:  asStrings(value(record, "treatments")),
		RedFlags:    asStrings(value(record, "red_flags")),
		Urgency:     asStrings(value(record, "urgency")),
	}, nil
}

// DrugInteractions lists INTERACTS_WITH edges between matching drugs.
func (s *Store) DrugInteractions(ctx context.Context, drugA, drugB string) ([]core.DrugInteraction, error) {
	if strings.TrimSpace(drugA) == "" {
		return nil, fmt.Errorf("%w: first drug is required", storage.ErrInvalidQuery)
	}
	cypher := s.queries.drugInteractions()
	if cypher == "" {
		return nil, nil
	}
	res, err := s.read(ctx, "drug interactions", cypher, map[string]any{
		"drug_a": strings.TrimSpace(drugA),
		"drug_b": strings.TrimSpace(drugB),
	})
	if err != nil {
		return nil, err
	}
	interactions := make([]core.DrugInteraction, 0, len(res.Records))
	for _, record := range res.Records {
		interactions = append(interactions, core.DrugInteraction{
			DrugA:       asString(value(record, "drug_a")),
			DrugB:       asString(value(record, "drug_b")),
			Severity:    asString(value(record, "severity")),
			Description: asString(value(record, "description")),
		})
	}
	return interactions, nil
}

// RelatedEntities returns neighbours of an entity.
func (s *Store) RelatedEntities(ctx context.Context, key core.EntityKey, limit int) ([]core.RelatedEntity, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit)
	}
	cypher, err := s.queries.relatedEntities(key.Type)
	if err != nil {
		return nil, err
	}
	res, err := s.read(ctx, "related entities", cypher, map[string]any{
		"name":  core.NormalizeName(key.Name),
		"limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	related := make([]core.RelatedEntity, 0, len(res.Records))
	for _, record := range res.Records {
		related = append(related, core.RelatedEntity{
			Entity: core.EntityKey{
				Type: schemaLabel(s.schema, asStrings(value(record, "labels"))),
				Name: asString(value(record, "name")),
			},
			Relationship: asString(value(record, "relationship")),
		})
	}
	return related, nil
}

// Document returns a stored document or storage.ErrNotFound.
func (s *Store) Document(ctx context.Context, id string) (*core.Document, error) {
	res, err := s.read(ctx, "get document", documentQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, storage.ErrNotFound
	}
	return documentFrom(asMap(value(res.Records[0], "props"))), nil
}

// Entity returns a stored entity or storage.ErrNotFound.
func (s *Store) Entity(ctx context.Context, key core.EntityKey) (*core.Entity, error) {
	cypher, err := s.queries.entity(key.Type)
	if err != nil {
		return nil, err
	}
	res, err := s.read(ctx, "get entity", cypher, map[string]any{"name": core.NormalizeName(key.Name)})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, storage.ErrNotFound
	}
	return entityFrom(key.Type, asMap(value(res.Records[0], "props"))), nil
}

// Chunks pages through chunks in id order.
func (s *Store) Chunks(ctx context.Context, after string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit)
	}
	res, err := s.read(ctx, "list chunks", chunksQuery, map[string]any{
		"after": after,
		"limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	chunks := make([]*core.Chunk, 0, len(res.Records))
	for _, record := range res.Records {
		chunks = append(chunks, chunkFrom(record))
	}
	return chunks, nil
}

// DeleteDocument removes a document and its chunks; entities are kept.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.write(ctx, "delete document", deleteDocumentQuery, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return storage.ErrNotFound
	}
	s.logger.Info("document deleted", "document", id, "chunks", asInt(value(res.Records[0], "chunks")))
	return nil
}

// PruneChunks removes the chunks of a document from index keep onwards.
func (s *Store) PruneChunks(ctx context.Context, documentID string, keep int) (int, error) {
	res, err := s.write(ctx, "prune chunks", pruneChunksQuery, map[string]any{
		"document_id": documentID,
		"keep":        int64(keep),
	})
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return asInt(value(res.Records[0], "chunks")), nil
}

// Stats counts nodes per first label and edges per type.
func (s *Store) Stats(ctx context.Context) (*core.GraphStats, error) {
	stats := &core.GraphStats{
		Labels:        make(map[string]int),
		Relationships: make(map[string]int),
	}
	res, err := s.read(ctx, "stats", labelStatsQuery, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range res.Records {
		label := asString(value(record, "label"))
		stats.Labels[label] = asInt(value(record, "count"))
	}
	stats.Documents = stats.Labels["Document"]
	stats.Chunks = stats.Labels["Chunk"]

	res, err = s.read(ctx, "stats", relationshipStatsQuery, nil)
	if err != nil {
		return nil, err
	}
	for _, record := range res.Records {
		stats.Relationships[asString(value(record, "type"))] = asInt(value(record, "count"))
	}
	return stats, nil
}

// Ping verifies connectivity to the server.
func (s *Store) Ping(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

// Close closes the driver and its connection pool.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func stringsParam(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// wrapError maps driver failures onto the storage taxonomy.
func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if neo.IsConnectivityError(err) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}
	var neoErr *neo.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security."),
			strings.HasPrefix(neoErr.Code, "Neo.TransientError.General.DatabaseUnavailable"):
			return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
