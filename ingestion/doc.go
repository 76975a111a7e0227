// Package ingestion turns plain-text documents into chunks, vectors,
// entities and relationships in a storage.GraphStore.
//
// A Pipeline processes one document at a time: the document node is written
// first, then every chunk is embedded and stored in order, and the first
// Options.ExtractionBudget chunks are passed to an ai.Extractor. Failures of
// the embedding or extraction services degrade the result (a chunk without a
// vector, a chunk without entities) and are counted in core.IngestStats
// instead of failing the call. Only a failure to write the document itself is
// fatal.
//
// Entities and relationships are filtered through a schema.Schema before they
// reach the store. Anything the schema rejects is dropped and counted.
//
// BatchIngester runs a Pipeline over many documents on a worker pool.
package ingestion
