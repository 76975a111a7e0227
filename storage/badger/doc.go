// Package badger implements storage.GraphStore on an embedded BadgerDB.
//
// Nodes and edges are stored under prefixed keys: documents, chunks,
// entities keyed by (type, name), mention edges in both directions and
// relationships keyed by (source, type, target). Vector search is an
// exhaustive cosine scan, keyword search is BM25 over tokenized chunk text,
// and traversals scan the relationship keyspace.
//
// Write transactions that conflict with a concurrent writer are retried,
// so concurrent ingestion of the same document converges to one graph.
//
//	store, err := badger.NewStore("/var/lib/medrag", schema.Medical)
//	if err != nil {
//	    return err
//	}
//	defer store.Close(ctx)
package badger
