package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, s *schema.Schema) *Store {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	store, err := newStore(backend, s)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func seedDocument(t *testing.T, store *Store, id string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertDocument(ctx, &core.Document{ID: id, Name: id + ".txt"}))
	for i, text := range texts {
		require.NoError(t, store.UpsertChunk(ctx, &core.Chunk{
			ID: core.ChunkID(id, i), DocumentID: id, Index: i, Text: text,
		}))
	}
}

func TestUpsertDocument_MergesMetadata(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	first := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.UpsertDocument(ctx, &core.Document{
		ID: "d1", Name: "guide.txt", Size: 10, IngestedAt: first,
		Metadata: map[string]string{"source": "who", "lang": "en"},
	}))
	require.NoError(t, store.UpsertDocument(ctx, &core.Document{
		ID: "d1", Name: "guide.txt", Size: 12, IngestedAt: first.Add(time.Hour),
		Metadata: map[string]string{"lang": "fr", "year": "2024"},
	}))

	doc, err := store.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "who", "lang": "fr", "year": "2024"}, doc.Metadata)
	assert.Equal(t, 12, doc.Size)

	_, err = store.Document(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpsertDocument(ctx, &core.Document{Name: "no-id"})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestUpsertChunk_KeepsVectorWhenNil(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	seedDocument(t, store, "d1")

	chunk := &core.Chunk{ID: "d1_0", DocumentID: "d1", Index: 0, Text: "fever", Vector: []float32{1, 0}}
	require.NoError(t, store.UpsertChunk(ctx, chunk))
	require.NoError(t, store.UpsertChunk(ctx, &core.Chunk{ID: "d1_0", DocumentID: "d1", Index: 0, Text: "fever"}))

	chunks, err := store.Chunks(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{1, 0}, chunks[0].Vector)

	err = store.UpsertChunk(ctx, &core.Chunk{ID: "d1_1", DocumentID: "d1", Index: 1, Text: "   "})
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestUpsertChunk_ChangedTextDropsVectorAndMentions(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	seedDocument(t, store, "d1")

	require.NoError(t, store.UpsertChunk(ctx, &core.Chunk{ID: "d1_0", DocumentID: "d1", Text: "Malaria causes fever.", Vector: []float32{1, 0}}))
	fever := core.EntityKey{Type: "Symptom", Name: "fever"}
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: fever.Type, Name: fever.Name}))
	require.NoError(t, store.LinkMention(ctx, fever, "d1_0"))

	require.NoError(t, store.UpsertChunk(ctx, &core.Chunk{ID: "d1_0", DocumentID: "d1", Text: "Dengue presents with rash."}))

	chunks, err := store.Chunks(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Dengue presents with rash.", chunks[0].Text)
	assert.Empty(t, chunks[0].Vector)

	hits, err := store.VectorSearch(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Relationships["MENTIONED_IN"])
}

func TestPruneChunks(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	seedDocument(t, store, "d1", "a", "b", "c", "d")
	seedDocument(t, store, "d2", "e", "f")
	fever := core.EntityKey{Type: "Symptom", Name: "fever"}
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: fever.Type, Name: fever.Name}))
	require.NoError(t, store.LinkMention(ctx, fever, "d1_0"))
	require.NoError(t, store.LinkMention(ctx, fever, "d1_3"))

	removed, err := store.PruneChunks(ctx, "d1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	chunks, err := store.Chunks(ctx, "", 10)
	require.NoError(t, err)
	var ids []string
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"d1_0", "d1_1", "d2_0", "d2_1"}, ids)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relationships["MENTIONED_IN"])
	assert.Equal(t, 4, stats.Relationships["FROM_DOCUMENT"])

	removed, err = store.PruneChunks(ctx, "d1", 2)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEnsureSchema_Dimension(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx, 3))
	require.NoError(t, store.EnsureSchema(ctx, 3), "idempotent")
	assert.ErrorIs(t, store.EnsureSchema(ctx, 4), storage.ErrDimensionMismatch)
	assert.ErrorIs(t, store.EnsureSchema(ctx, 0), storage.ErrInvalidQuery)

	seedDocument(t, store, "d1")
	err := store.UpsertChunk(ctx, &core.Chunk{ID: "d1_0", DocumentID: "d1", Text: "x", Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	_, err = store.VectorSearch(ctx, []float32{1, 2}, 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestEnsureSchema_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir, schema.Medical)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx, 8))
	require.NoError(t, store.Close(ctx))

	reopened, err := NewStore(dir, schema.Medical)
	require.NoError(t, err)
	defer reopened.Close(ctx)
	assert.ErrorIs(t, reopened.EnsureSchema(ctx, 16), storage.ErrDimensionMismatch)
}

func TestUpsertEntity_MergeByNormalizedName(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{
		Type: "Disease", Name: "Malaria", Description: "Parasitic infection",
		Properties: map[string]string{"icd10": "B54", "vector": "mosquito"},
	}))
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{
		Type: "Disease", Name: "  MALARIA ",
		Properties: map[string]string{"vector": "anopheles"},
	}))

	entity, err := store.Entity(ctx, core.EntityKey{Type: "Disease", Name: "malaria"})
	require.NoError(t, err)
	assert.Equal(t, "malaria", entity.Name)
	assert.Equal(t, "Parasitic infection", entity.Description, "empty description keeps the old one")
	assert.Equal(t, map[string]string{"icd10": "B54", "vector": "anopheles"}, entity.Properties)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Labels["Disease"])
}

func TestUpsertEntity_RejectsUnknownLabel(t *testing.T) {
	store := newTestStore(t, schema.Medical)
	ctx := context.Background()

	err := store.UpsertEntity(ctx, &core.Entity{Type: "Spaceship", Name: "enterprise"})
	assert.ErrorIs(t, err, storage.ErrUnknownLabel)

	err = store.UpsertEntity(ctx, &core.Entity{Type: "Disease", Name: "  "})
	assert.ErrorIs(t, err, core.ErrInvalidEntity)
}

func TestUpsertRelationship(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	fever := core.EntityKey{Type: "Symptom", Name: "fever"}
	malaria := core.EntityKey{Type: "Disease", Name: "malaria"}
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: fever.Type, Name: fever.Name}))

	ok, err := store.UpsertRelationship(ctx, &core.Relationship{Source: fever, Target: malaria, Type: "INDICATES"})
	require.NoError(t, err)
	assert.False(t, ok, "missing target")

	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: malaria.Type, Name: malaria.Name}))
	for i := 0; i < 3; i++ {
		ok, err = store.UpsertRelationship(ctx, &core.Relationship{Source: fever, Target: malaria, Type: "INDICATES"})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = store.UpsertRelationship(ctx, &core.Relationship{Source: fever, Target: malaria, Type: "LOVES"})
	assert.ErrorIs(t, err, storage.ErrUnknownLabel)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relationships["INDICATES"], "re-asserting is a no-op merge")
}

func TestLinkMentionAndDeleteDocument(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	seedDocument(t, store, "d1", "Malaria causes fever.", "Treat with artemisinin.")
	seedDocument(t, store, "d2", "Dengue causes fever.")
	fever := core.EntityKey{Type: "Symptom", Name: "fever"}
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: fever.Type, Name: fever.Name}))
	require.NoError(t, store.LinkMention(ctx, fever, "d1_0"))
	require.NoError(t, store.LinkMention(ctx, fever, "d1_0"))
	require.NoError(t, store.LinkMention(ctx, fever, "d2_0"))
	require.NoError(t, store.LinkMention(ctx, fever, "missing_0"), "missing chunk is a no-op")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.Relationships["MENTIONED_IN"])
	assert.Equal(t, 3, stats.Relationships["FROM_DOCUMENT"])

	require.NoError(t, store.DeleteDocument(ctx, "d1"))
	assert.ErrorIs(t, store.DeleteDocument(ctx, "d1"), storage.ErrNotFound)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Relationships["MENTIONED_IN"])
	assert.Equal(t, 1, stats.Labels["Symptom"], "entities survive a purge")
}

func TestChunks_Paging(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	seedDocument(t, store, "d1", "a", "b", "c", "d", "e")

	var seen []string
	after := ""
	for {
		page, err := store.Chunks(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 2)
		for _, c := range page {
			seen = append(seen, c.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []string{"d1_0", "d1_1", "d1_2", "d1_3", "d1_4"}, seen)

	_, err := store.Chunks(ctx, "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestPingAndClose(t *testing.T) {
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close(ctx))
	assert.ErrorIs(t, store.Ping(ctx), storage.ErrUnavailable)
	assert.NoError(t, store.Close(ctx), "closing twice is harmless")
}

func TestLinkMention_ControlCharactersInName(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	seedDocument(t, store, "d1", "Fever and chills.")

	key := core.EntityKey{Type: "Symptom", Name: "fever\x00chills"}
	require.NoError(t, store.UpsertEntity(ctx, &core.Entity{Type: key.Type, Name: key.Name}))
	require.NoError(t, store.LinkMention(ctx, key, "d1_0"))

	entity, err := store.Entity(ctx, core.EntityKey{Type: "Symptom", Name: "fever chills"})
	require.NoError(t, err)
	assert.Equal(t, "fever chills", entity.Name)

	require.NoError(t, store.DeleteDocument(ctx, "d1"))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Relationships["MENTIONED_IN"])
	assert.Equal(t, 1, stats.Labels["Symptom"])
}
