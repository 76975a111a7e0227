package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/storage/badger"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

// newSeededStore returns a memory store holding one document with n chunks
// that have no vectors yet.
func newSeededStore(t *testing.T, n int) storage.GraphStore {
	t.Helper()
	ctx := context.Background()

	store, err := badger.NewMemoryStore(schema.Medical)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	doc := &core.Document{ID: "doc-1", Name: "notes.txt"}
	require.NoError(t, store.UpsertDocument(ctx, doc))
	for i := 0; i < n; i++ {
		chunk := &core.Chunk{
			ID:         core.ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Index:      i,
			Text:       fmt.Sprintf("chunk number %d about fever", i),
		}
		require.NoError(t, store.UpsertChunk(ctx, chunk))
	}
	return store
}

// constantEmbedder returns the same unnormalized vector for every text.
func constantEmbedder(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{3, 4, 0, 0}
	}
	return vectors, nil
}
