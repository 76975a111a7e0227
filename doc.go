// Package medrag wires the medical GraphRAG components into one service.
//
// A Service owns a graph store and an AI provider. Documents are written
// once through the ingestion pipeline; queries are answered many times by
// the hybrid retriever, which fuses vector, keyword, entity and graph
// traversal results into a core.RAGContext.
//
//	svc, err := medrag.New(store, provider, medrag.WithSchema(schema.Medical))
//	if err != nil {
//	    return err
//	}
//	defer svc.Close(ctx)
//
//	res, err := svc.IngestDocument(ctx, medrag.Source{Path: "malaria.txt"}, ingestion.DefaultOptions())
//	rc, err := svc.Query(ctx, "fever and chills", search.DefaultOptions())
package medrag
