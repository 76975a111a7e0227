// Package neo4j implements storage.GraphStore on a Neo4j server.
//
// All statements are parameterized. Node labels and relationship types
// cannot be parameters in Cypher, so they are interpolated only after the
// schema has accepted them, and the rendered statements are cached per
// label combination. Failures to reach the server are reported as
// storage.ErrUnavailable.
//
// EnsureSchema creates:
//
//   - a uniqueness constraint on name for every schema label
//   - id uniqueness on Document and Chunk
//   - the chunk_text full-text index over Chunk.text
//   - the entity_search full-text index over name and description of every schema label
//   - the chunk_embeddings cosine vector index
package neo4j
