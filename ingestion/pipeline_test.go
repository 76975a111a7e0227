package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/ai/mock"
	"github.com/poiesic/medrag/chunker"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/retry"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const malariaText = "Malaria is a parasitic disease spread by mosquitoes. " +
	"Common symptoms include fever, chills and headache. " +
	"Severe cases cause confusion and need urgent care. " +
	"Chloroquine and artemisinin are used for treatment."

// fastRetry keeps one retry without the production backoff.
var fastRetry = retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}

func newTestStore(t *testing.T, s *schema.Schema) storage.GraphStore {
	t.Helper()
	store, err := badger.NewMemoryStore(s)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func smallChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.WithSize(60), chunker.WithOverlap(10))
	require.NoError(t, err)
	return c
}

func newTestPipeline(t *testing.T, store storage.GraphStore, embedder ai.Embedder, extractor ai.Extractor, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithChunker(smallChunker(t)), WithRetryPolicy(fastRetry)}, opts...)
	p, err := NewPipeline(store, embedder, extractor, opts...)
	require.NoError(t, err)
	return p
}

// malariaExtraction returns the same graph for every chunk.
func malariaExtraction(ctx context.Context, text string) (*ai.Extraction, error) {
	return &ai.Extraction{
		Entities: []ai.ExtractedEntity{
			{ID: "e1", Name: "Malaria", Type: "Disease", Description: "Parasitic disease", Properties: map[string]string{"icd10": "B54"}},
			{ID: "e2", Name: "Fever", Type: "symptom"},
			{ID: "e3", Name: "Rainy season", Type: "Weather"},
		},
		Relationships: []ai.ExtractedRelationship{
			{Source: "e2", Target: "e1", Type: "indicates"},
			{Source: "fever", Target: "malaria", Type: "MANIFESTS_AS"},
			{Source: "e3", Target: "e1", Type: "ASSOCIATED_WITH"},
			{Source: "e2", Target: "e1", Type: "LIKES"},
		},
	}, nil
}

func TestNewPipeline_RequiredArguments(t *testing.T) {
	store := newTestStore(t, schema.Medical)

	_, err := NewPipeline(nil, mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(store, mock.NewMockEmbedder(), nil, WithExtractionRate(-1))
	assert.Error(t, err)

	_, err = NewPipeline(store, mock.NewMockEmbedder(), nil, WithRetryPolicy(retry.Policy{}))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)

	p, err := NewPipeline(store, mock.NewMockEmbedder(), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Medical, p.Schema())
}

func TestIngest_StoresDocumentAndChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	embedder := mock.NewMockEmbedder()
	p := newTestPipeline(t, store, embedder, nil)

	stats, err := p.Ingest(ctx, Document{Name: "malaria.txt", Text: malariaText, Metadata: map[string]string{"lang": "en"}}, Options{})
	require.NoError(t, err)

	segments := smallChunker(t).Split(malariaText)
	require.Greater(t, len(segments), 1)
	assert.Equal(t, core.DocumentID(malariaText), stats.DocumentID)
	assert.Equal(t, len(segments), stats.Chunks)
	assert.Equal(t, len(segments), stats.ChunksStored)
	assert.Equal(t, len(segments), stats.ChunksEmbedded)
	assert.Zero(t, stats.EmbeddingFailures)
	assert.Equal(t, len(segments), embedder.CallCount())

	doc, err := store.Document(ctx, stats.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "malaria.txt", doc.Name)
	assert.Equal(t, len(malariaText), doc.Size)
	assert.Equal(t, "en", doc.Metadata["lang"])

	chunks, err := store.Chunks(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, chunks, len(segments))
	for i, c := range chunks {
		assert.Equal(t, core.ChunkID(stats.DocumentID, i), c.ID)
		assert.Equal(t, segments[i], c.Text)
		assert.Len(t, c.Vector, mock.DefaultDimension)
		assert.Equal(t, "malaria.txt", c.Metadata[SourceMetadataKey])
	}
}

func TestIngest_EmptyText(t *testing.T) {
	p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), nil)
	_, err := p.Ingest(context.Background(), Document{Name: "empty.txt"}, Options{})
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestIngest_ExtractionRequiresExtractor(t *testing.T) {
	p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), nil)
	_, err := p.Ingest(context.Background(), Document{Text: malariaText}, DefaultOptions())
	assert.ErrorIs(t, err, ErrExtractorRequired)
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = malariaExtraction
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), extractor)

	doc := Document{ID: "doc-1", Name: "malaria.txt", Text: malariaText}
	first, err := p.Ingest(ctx, doc, DefaultOptions())
	require.NoError(t, err)
	before, err := store.Stats(ctx)
	require.NoError(t, err)

	second, err := p.Ingest(ctx, doc, DefaultOptions())
	require.NoError(t, err)
	after, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, after.Documents)
	assert.Equal(t, first.Chunks, after.Chunks)
	assert.Equal(t, 2, after.Labels[schema.LabelDisease]+after.Labels[schema.LabelSymptom])
}

func TestIngest_EmbeddingFailureKeepsChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	p := newTestPipeline(t, store, embedder, nil)

	stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{})
	require.NoError(t, err)

	assert.Equal(t, stats.Chunks, stats.ChunksStored)
	assert.Zero(t, stats.ChunksEmbedded)
	assert.Equal(t, stats.Chunks, stats.EmbeddingFailures)
	assert.Equal(t, 2*stats.Chunks, embedder.CallCount(), "each chunk is retried once")

	chunks, err := store.Chunks(ctx, "", 100)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Nil(t, c.Vector)
	}
}

func TestIngest_EmbeddingRecoversOnRetry(t *testing.T) {
	calls := 0
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls%2 == 1 {
			return nil, errors.New("timeout")
		}
		return []float32{1, 0, 0}, nil
	})
	p := newTestPipeline(t, newTestStore(t, schema.Medical), embedder, nil)

	stats, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{})
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, stats.ChunksEmbedded)
	assert.Zero(t, stats.EmbeddingFailures)
}

func TestIngest_DimensionMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("configured dimension", func(t *testing.T) {
		store := newTestStore(t, schema.Medical)
		p := newTestPipeline(t, store, mock.NewMockEmbedder(), nil, WithDimension(8))

		stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{})
		require.NoError(t, err)
		assert.Equal(t, stats.Chunks, stats.ChunksStored)
		assert.Zero(t, stats.ChunksEmbedded)
		assert.Equal(t, stats.Chunks, stats.EmbeddingFailures)
	})

	t.Run("store dimension", func(t *testing.T) {
		store := newTestStore(t, schema.Medical)
		require.NoError(t, store.EnsureSchema(ctx, 8))
		p := newTestPipeline(t, store, mock.NewMockEmbedder(), nil)

		stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{})
		require.NoError(t, err)
		assert.Equal(t, stats.Chunks, stats.ChunksStored)
		assert.Zero(t, stats.ChunksEmbedded)
		assert.Zero(t, stats.ChunkFailures)

		chunks, err := store.Chunks(ctx, "", 100)
		require.NoError(t, err)
		assert.Len(t, chunks, stats.Chunks)
	})
}

func TestIngest_EntitiesAndRelationships(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = malariaExtraction
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), extractor)

	stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.CallCount())
	assert.Equal(t, 1, stats.ChunksExtracted)
	assert.Equal(t, 2, stats.EntitiesCreated)
	assert.Equal(t, 1, stats.EntitiesDropped, "Weather is not a medical label")
	assert.Equal(t, 2, stats.RelationshipsCreated, "id and name references both resolve")
	assert.Equal(t, 1, stats.RelationshipsDropped, "LIKES is not a medical relationship")
	assert.Equal(t, 1, stats.DanglingRelationships, "the dropped entity cannot be an endpoint")

	malaria, err := store.Entity(ctx, core.EntityKey{Type: "Disease", Name: "malaria"})
	require.NoError(t, err)
	assert.Equal(t, "Parasitic disease", malaria.Description)
	assert.Equal(t, "B54", malaria.Properties["icd10"])

	_, err = store.Entity(ctx, core.EntityKey{Type: "Symptom", Name: "fever"})
	require.NoError(t, err)

	related, err := store.RelatedEntities(ctx, core.EntityKey{Type: "Symptom", Name: "fever"}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.RelatedEntity{
		{Entity: core.EntityKey{Type: "Disease", Name: "malaria"}, Relationship: "INDICATES"},
		{Entity: core.EntityKey{Type: "Disease", Name: "malaria"}, Relationship: "MANIFESTS_AS"},
	}, related)

	graph, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Relationships["MENTIONED_IN"])
}

func TestIngest_NonStrictSchemaKeepsRawType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Full)
	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = malariaExtraction
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), extractor, WithSchema(schema.Full))

	stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntitiesCreated)
	assert.Zero(t, stats.EntitiesDropped)
	assert.Equal(t, 4, stats.RelationshipsCreated)
	assert.Zero(t, stats.RelationshipsDropped)

	season, err := store.Entity(ctx, core.EntityKey{Type: schema.FallbackLabel, Name: "rainy season"})
	require.NoError(t, err)
	assert.Equal(t, "Weather", season.Properties["type"])

	related, err := store.RelatedEntities(ctx, core.EntityKey{Type: "Symptom", Name: "fever"}, 10)
	require.NoError(t, err)
	assert.Contains(t, related, core.RelatedEntity{Entity: core.EntityKey{Type: "Disease", Name: "malaria"}, Relationship: schema.FallbackRelationship})
}

func TestIngest_ExtractionBudget(t *testing.T) {
	tests := []struct {
		name   string
		budget int
		want   func(chunks int) int
	}{
		{name: "disabled", budget: 0, want: func(int) int { return 0 }},
		{name: "two chunks", budget: 2, want: func(int) int { return 2 }},
		{name: "unlimited", budget: -1, want: func(chunks int) int { return chunks }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := mock.NewMockExtractor()
			p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), extractor)

			stats, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: tt.budget})
			require.NoError(t, err)
			assert.Equal(t, tt.want(stats.Chunks), extractor.CallCount())
			assert.Equal(t, tt.want(stats.Chunks), stats.ChunksExtracted)
		})
	}
}

func TestIngest_ExtractionFailuresCountAgainstBudget(t *testing.T) {
	extractor := mock.NewMockExtractor()
	calls := 0
	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
		calls++
		if calls == 1 {
			return nil, ai.ErrMalformedExtraction
		}
		return malariaExtraction(ctx, text)
	}
	p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), extractor)

	stats, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, extractor.CallCount(), "malformed replies are not retried")
	assert.Equal(t, 1, stats.ExtractionFailures)
	assert.Equal(t, 1, stats.ChunksExtracted)
	assert.Equal(t, 2, stats.EntitiesCreated)
}

func TestIngest_TransientExtractionErrorIsRetried(t *testing.T) {
	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
		return nil, errors.New("connection reset")
	}
	p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), extractor)

	stats, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, extractor.CallCount())
	assert.Equal(t, 1, stats.ExtractionFailures)
	assert.Equal(t, stats.Chunks, stats.ChunksStored)
}

func TestIngest_EntityDeduplication(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	names := []string{"Malaria", "MALARIA", "  malaria "}
	extractor := mock.NewMockExtractor()
	calls := 0
	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
		name := names[calls%len(names)]
		calls++
		return &ai.Extraction{Entities: []ai.ExtractedEntity{{Name: name, Type: "Disease"}}}, nil
	}
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), extractor)

	stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntitiesCreated)

	graph, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.Labels[schema.LabelDisease])
	assert.Equal(t, 3, graph.Relationships["MENTIONED_IN"])
}

func TestIngest_MergePrecedence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	replies := []*ai.Extraction{
		{Entities: []ai.ExtractedEntity{{Name: "Malaria", Type: "Disease", Description: "first", Properties: map[string]string{"a": "1", "b": "1"}}}},
		{Entities: []ai.ExtractedEntity{{Name: "malaria", Type: "Disease", Properties: map[string]string{"b": "2", "c": "2"}}}},
	}
	extractor := mock.NewMockExtractor()
	calls := 0
	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
		reply := replies[calls%len(replies)]
		calls++
		return reply, nil
	}
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), extractor)

	_, err := p.Ingest(ctx, Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 2})
	require.NoError(t, err)

	malaria, err := store.Entity(ctx, core.EntityKey{Type: "Disease", Name: "malaria"})
	require.NoError(t, err)
	assert.Equal(t, "first", malaria.Description, "an empty description never overwrites")
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "2"}, malaria.Properties)
}

func TestIngest_CancellationReturnsPartialStats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := mock.NewMockEmbedder()
	embedder.WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		if embedder.CallCount() == 2 {
			cancel()
		}
		return []float32{1, 0}, nil
	})
	p := newTestPipeline(t, newTestStore(t, schema.Medical), embedder, nil)

	stats, err := p.Ingest(ctx, Document{Text: malariaText}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Less(t, stats.ChunksStored, stats.Chunks)
}

// unavailableStore fails every document write.
type unavailableStore struct {
	storage.GraphStore
}

func (unavailableStore) UpsertDocument(context.Context, *core.Document) error {
	return storage.ErrUnavailable
}

func TestIngest_DocumentWriteIsFatal(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	p := newTestPipeline(t, unavailableStore{newTestStore(t, schema.Medical)}, embedder, nil)

	stats, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Nil(t, stats)
	assert.Zero(t, embedder.CallCount())
}

func TestIngest_ExtractionRateLimit(t *testing.T) {
	extractor := mock.NewMockExtractor()
	p := newTestPipeline(t, newTestStore(t, schema.Medical), mock.NewMockEmbedder(), extractor, WithExtractionRate(20))

	start := time.Now()
	_, err := p.Ingest(context.Background(), Document{Text: malariaText}, Options{ExtractEntities: true, ExtractionBudget: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, extractor.CallCount())
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "burst of one allows a call every 50ms")
}

func TestBatchIngester(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)
	p := newTestPipeline(t, store, mock.NewMockEmbedder(), nil)

	b, err := NewBatchIngester(p, WithPoolSize(2))
	require.NoError(t, err)
	defer b.Release()

	docs := []Document{
		{Name: "a.txt", Text: malariaText},
		{Name: "empty.txt"},
		{Name: "c.txt", Text: strings.Repeat("Dengue causes severe joint pain. ", 4)},
	}
	results := b.IngestAll(ctx, docs, Options{})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, core.ErrEmptyContent)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, results.Failed())
	assert.ErrorContains(t, results.Err(), "empty.txt")

	graph, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Documents)
	assert.Equal(t, results[0].Stats.Chunks+results[2].Stats.Chunks, graph.Chunks)

	_, err = NewBatchIngester(nil)
	assert.ErrorIs(t, err, ErrPipelineRequired)
}

func TestIngest_EditedDocumentReplacesStaleChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, schema.Medical)

	first := newTestPipeline(t, store, mock.NewMockEmbedder(), nil)
	before, err := first.Ingest(ctx, Document{ID: "notes", Name: "notes.txt", Text: malariaText}, Options{})
	require.NoError(t, err)
	require.Greater(t, before.Chunks, 1)
	require.Equal(t, before.Chunks, before.ChunksEmbedded)

	failing := mock.NewMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	second := newTestPipeline(t, store, failing, nil)
	after, err := second.Ingest(ctx, Document{ID: "notes", Name: "notes.txt", Text: "Dengue presents with rash."}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, after.Chunks)
	assert.Equal(t, 1, after.EmbeddingFailures)
	assert.Equal(t, before.Chunks-1, after.ChunksPruned)

	chunks, err := store.Chunks(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Dengue presents with rash.", chunks[0].Text)
	assert.Empty(t, chunks[0].Vector, "the vector of the old text is dropped")
}
