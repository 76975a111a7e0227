package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/medrag/ai/mock"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/retry"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chunkTexts = []string{
	"Malaria presents with high fever and chills every two days.",
	"Dengue causes joint pain and a rash after mosquito bites.",
	"Warfarin and aspirin together raise the risk of bleeding.",
}

func newSeededStore(t *testing.T) storage.GraphStore {
	t.Helper()
	ctx := context.Background()
	store, err := badger.NewMemoryStore(schema.Medical)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	embedder := mock.NewMockEmbedder()
	require.NoError(t, store.UpsertDocument(ctx, &core.Document{ID: "doc", Name: "notes.txt"}))
	for i, text := range chunkTexts {
		vector, err := embedder.EmbedText(ctx, text)
		require.NoError(t, err)
		require.NoError(t, store.UpsertChunk(ctx, &core.Chunk{
			ID: core.ChunkID("doc", i), DocumentID: "doc", Index: i, Text: text, Vector: vector,
		}))
	}

	entities := []*core.Entity{
		{Type: "Disease", Name: "malaria", Description: "Parasitic infection"},
		{Type: "Disease", Name: "dengue", Description: "Viral infection"},
		{Type: "Symptom", Name: "high fever"},
		{Type: "Symptom", Name: "chills"},
		{Type: "Symptom", Name: "headache"},
		{Type: "Symptom", Name: "joint pain"},
		{Type: "RedFlag", Name: "altered consciousness", Description: "Possible cerebral malaria"},
		{Type: "Drug", Name: "warfarin"},
		{Type: "Drug", Name: "aspirin"},
		{Type: "Drug", Name: "ibuprofen"},
	}
	for _, e := range entities {
		require.NoError(t, store.UpsertEntity(ctx, e))
	}

	key := func(typ, name string) core.EntityKey { return core.EntityKey{Type: typ, Name: name} }
	rels := []*core.Relationship{
		{Source: key("Symptom", "high fever"), Target: key("Disease", "malaria"), Type: "INDICATES"},
		{Source: key("Symptom", "chills"), Target: key("Disease", "malaria"), Type: "INDICATES"},
		{Source: key("Symptom", "headache"), Target: key("Disease", "malaria"), Type: "INDICATES"},
		{Source: key("Disease", "dengue"), Target: key("Symptom", "high fever"), Type: "MANIFESTS_AS"},
		{Source: key("Symptom", "joint pain"), Target: key("Disease", "dengue"), Type: "ASSOCIATED_WITH"},
		{Source: key("Symptom", "high fever"), Target: key("RedFlag", "altered consciousness"), Type: "RED_FLAG_FOR"},
		{Source: key("Symptom", "chills"), Target: key("RedFlag", "altered consciousness"), Type: "INDICATES"},
		{Source: key("Drug", "warfarin"), Target: key("Drug", "aspirin"), Type: "INTERACTS_WITH",
			Properties: map[string]string{"severity": "major", "description": "Bleeding risk"}},
	}
	for _, r := range rels {
		ok, err := store.UpsertRelationship(ctx, r)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return store
}

// faultyReader injects failures and latency in front of a real store.
type faultyReader struct {
	storage.Reader
	vectorErr, keywordErr, entityErr, graphErr error
	keywordDelay                                time.Duration
}

func (f *faultyReader) VectorSearch(ctx context.Context, vector []float32, k int) ([]core.ChunkHit, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.Reader.VectorSearch(ctx, vector, k)
}

func (f *faultyReader) KeywordSearch(ctx context.Context, text string, k int) ([]core.ChunkHit, error) {
	if f.keywordDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.keywordDelay):
		}
	}
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.Reader.KeywordSearch(ctx, text, k)
}

func (f *faultyReader) EntitySearch(ctx context.Context, text string, k int) ([]core.EntityHit, error) {
	if f.entityErr != nil {
		return nil, f.entityErr
	}
	return f.Reader.EntitySearch(ctx, text, k)
}

func (f *faultyReader) SymptomToDiseasePaths(ctx context.Context, symptoms []string) ([]core.DiseasePath, error) {
	if f.graphErr != nil {
		return nil, f.graphErr
	}
	return f.Reader.SymptomToDiseasePaths(ctx, symptoms)
}

func channel(rc *core.RAGContext, name string) (core.ChannelStatus, bool) {
	for _, c := range rc.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return core.ChannelStatus{}, false
}

func TestNewRetriever(t *testing.T) {
	store := newSeededStore(t)

	_, err := NewRetriever(nil, mock.NewMockEmbedder())
	assert.Equal(t, ErrStoreRequired, err)

	_, err = NewRetriever(store, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	_, err = NewRetriever(store, mock.NewMockEmbedder(), WithEmbedRetry(retry.Policy{}))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)

	r, err := NewRetriever(store, mock.NewMockEmbedder(), WithLogger(nil), WithConfidence(nil))
	require.NoError(t, err)
	assert.NotNil(t, r.confidence)
}

func TestRetrieve_InvalidArguments(t *testing.T) {
	r, err := NewRetriever(newSeededStore(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "   ", DefaultOptions())
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = r.Retrieve(context.Background(), "fever", Options{TopK: 0})
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRetrieve_Hybrid(t *testing.T) {
	r, err := NewRetriever(newSeededStore(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "fever and chills", Options{TopK: 3, IncludeEntities: true, IncludeGraphContext: true})
	require.NoError(t, err)

	require.Len(t, rc.Chunks, 3, "vector search ranks every embedded chunk")
	var malaria *core.ScoredChunk
	var total float32
	for i := range rc.Chunks {
		total += rc.Chunks[i].Score
		if rc.Chunks[i].Chunk.ID == core.ChunkID("doc", 0) {
			malaria = &rc.Chunks[i]
		}
		if i > 0 {
			assert.GreaterOrEqual(t, rc.Chunks[i-1].Score, rc.Chunks[i].Score)
		}
	}
	require.NotNil(t, malaria)
	assert.True(t, malaria.HasMethod(core.MethodSemantic))
	assert.True(t, malaria.HasMethod(core.MethodKeyword))
	assert.InDelta(t, total, rc.TotalScore, 1e-6)

	assert.Contains(t, rc.GraphPaths, "RED FLAG: altered consciousness - Possible cerebral malaria")
	found := false
	for _, p := range rc.GraphPaths {
		if strings.HasPrefix(p, "Symptoms [") && strings.HasSuffix(p, "] may indicate malaria") {
			found = true
		}
	}
	assert.True(t, found, "paths: %v", rc.GraphPaths)

	require.Len(t, rc.Channels, 4)
	for _, c := range rc.Channels {
		assert.True(t, c.OK(), c.Name)
	}
	assert.Greater(t, rc.Confidence, float32(0))
	assert.Equal(t, "fever and chills", rc.Query)
}

func TestRetrieve_SkipsDisabledChannels(t *testing.T) {
	r, err := NewRetriever(newSeededStore(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "fever", Options{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, rc.Channels, 2)
	assert.Empty(t, rc.Entities)
	assert.Empty(t, rc.GraphPaths)
	assert.Len(t, rc.Chunks, 2)
}

func TestRetrieve_FailedChannelDegrades(t *testing.T) {
	store := &faultyReader{Reader: newSeededStore(t), keywordErr: errors.New("index offline")}
	r, err := NewRetriever(store, mock.NewMockEmbedder())
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "fever and chills", DefaultOptions())
	require.NoError(t, err)

	status, ok := channel(rc, ChannelKeyword)
	require.True(t, ok)
	assert.False(t, status.OK())
	assert.Zero(t, status.Results)
	for _, c := range rc.Chunks {
		assert.Equal(t, []string{core.MethodSemantic}, c.Methods)
	}
	assert.NotEmpty(t, rc.GraphPaths)

	healthy, err := NewRetriever(store.Reader, mock.NewMockEmbedder())
	require.NoError(t, err)
	full, err := healthy.Retrieve(context.Background(), "fever and chills", DefaultOptions())
	require.NoError(t, err)
	assert.Less(t, rc.Confidence, full.Confidence)
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("model not loaded")
	})
	r, err := NewRetriever(newSeededStore(t), embedder, WithEmbedRetry(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}))
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "joint pain", Options{TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.CallCount())

	status, ok := channel(rc, ChannelVector)
	require.True(t, ok)
	assert.ErrorContains(t, status.Err, "model not loaded")
	require.NotEmpty(t, rc.Chunks)
	assert.Equal(t, core.ChunkID("doc", 1), rc.Chunks[0].Chunk.ID)
	assert.Equal(t, []string{core.MethodKeyword}, rc.Chunks[0].Methods)
}

func TestRetrieve_StoreUnavailable(t *testing.T) {
	unavailable := &faultyReader{
		Reader:     newSeededStore(t),
		vectorErr:  storage.ErrUnavailable,
		keywordErr: storage.ErrUnavailable,
		entityErr:  storage.ErrUnavailable,
		graphErr:   storage.ErrUnavailable,
	}
	r, err := NewRetriever(unavailable, mock.NewMockEmbedder())
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "fever", DefaultOptions())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Nil(t, rc)
}

func TestRetrieve_AllChannelsFailedWithoutOutage(t *testing.T) {
	boom := errors.New("boom")
	store := &faultyReader{Reader: newSeededStore(t), vectorErr: boom, keywordErr: boom}
	r, err := NewRetriever(store, mock.NewMockEmbedder())
	require.NoError(t, err)

	rc, err := r.Retrieve(context.Background(), "fever", Options{TopK: 3})
	require.NoError(t, err, "no matches is not an error")
	assert.Empty(t, rc.Chunks)
	assert.Zero(t, rc.Confidence)
}

func TestRetrieve_ChannelTimeout(t *testing.T) {
	store := &faultyReader{Reader: newSeededStore(t), keywordDelay: time.Second}
	r, err := NewRetriever(store, mock.NewMockEmbedder(), WithChannelTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	rc, err := r.Retrieve(context.Background(), "fever", Options{TopK: 3})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	status, ok := channel(rc, ChannelKeyword)
	require.True(t, ok)
	assert.ErrorIs(t, status.Err, context.DeadlineExceeded)
	assert.Len(t, rc.Chunks, 3)
}

func TestRetrieve_CancelledContext(t *testing.T) {
	r, err := NewRetriever(newSeededStore(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Retrieve(ctx, "fever", DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingMonitor struct {
	events []string
	failed []string
	result *core.RAGContext
}

func (m *recordingMonitor) Start(query string)                     { m.events = append(m.events, "start:"+query) }
func (m *recordingMonitor) AfterSemanticSearch([]core.ChunkHit)    { m.events = append(m.events, "semantic") }
func (m *recordingMonitor) AfterKeywordSearch([]core.ChunkHit)     { m.events = append(m.events, "keyword") }
func (m *recordingMonitor) AfterEntitySearch([]core.EntityHit)     { m.events = append(m.events, "entity") }
func (m *recordingMonitor) AfterGraphTraversal([]string, []string) { m.events = append(m.events, "graph") }
func (m *recordingMonitor) ChannelFailed(s core.ChannelStatus)     { m.failed = append(m.failed, s.Name) }
func (m *recordingMonitor) Finish(rc *core.RAGContext) {
	m.events = append(m.events, "finish")
	m.result = rc
}

func TestRetrieveWithMonitor(t *testing.T) {
	store := &faultyReader{Reader: newSeededStore(t), entityErr: errors.New("no index")}
	r, err := NewRetriever(store, mock.NewMockEmbedder())
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	rc, err := r.RetrieveWithMonitor(context.Background(), "chills", DefaultOptions(), monitor)
	require.NoError(t, err)

	assert.Equal(t, []string{"start:chills", "semantic", "keyword", "entity", "graph", "finish"}, monitor.events)
	assert.Equal(t, []string{ChannelEntity}, monitor.failed)
	assert.Same(t, rc, monitor.result)
}

func TestMerge(t *testing.T) {
	chunk := func(id string) *core.Chunk { return &core.Chunk{ID: id, Text: id} }
	a, b, c := chunk("a"), chunk("b"), chunk("c")

	t.Run("first occurrence keeps its score", func(t *testing.T) {
		merged := merge(
			[]core.ChunkHit{{Chunk: a, Score: 0.9}, {Chunk: b, Score: 0.5}},
			[]core.ChunkHit{{Chunk: b, Score: 1.0}, {Chunk: c, Score: 0.7}},
			10)
		require.Len(t, merged, 3)

		assert.Equal(t, "a", merged[0].Chunk.ID)
		assert.Equal(t, []string{core.MethodSemantic}, merged[0].Methods)

		assert.Equal(t, "c", merged[1].Chunk.ID)
		assert.InDelta(t, 0.56, merged[1].Score, 1e-6)
		assert.Equal(t, []string{core.MethodKeyword}, merged[1].Methods)

		assert.Equal(t, "b", merged[2].Chunk.ID)
		assert.InDelta(t, 0.5, merged[2].Score, 1e-6)
		assert.Equal(t, []string{core.MethodSemantic, core.MethodKeyword}, merged[2].Methods)
	})

	t.Run("ties keep first-seen order", func(t *testing.T) {
		merged := merge(
			[]core.ChunkHit{{Chunk: a, Score: 0.5}},
			[]core.ChunkHit{{Chunk: c, Score: 0.625}, {Chunk: b, Score: 0.625}},
			10)
		require.Len(t, merged, 3)
		assert.Equal(t, "a", merged[0].Chunk.ID)
		assert.Equal(t, "c", merged[1].Chunk.ID)
		assert.Equal(t, "b", merged[2].Chunk.ID)
	})

	t.Run("truncates to top k", func(t *testing.T) {
		merged := merge(
			[]core.ChunkHit{{Chunk: a, Score: 0.2}, {Chunk: b, Score: 0.3}},
			[]core.ChunkHit{{Chunk: c, Score: 1}},
			2)
		require.Len(t, merged, 2)
		assert.Equal(t, "c", merged[0].Chunk.ID)
		assert.Equal(t, "b", merged[1].Chunk.ID)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, merge(nil, nil, 5))
	})
}

func TestDefaultConfidence(t *testing.T) {
	ok := core.ChannelStatus{Name: ChannelVector}
	failed := core.ChannelStatus{Name: ChannelKeyword, Err: errors.New("down")}
	chunks := []core.ScoredChunk{{Chunk: &core.Chunk{ID: "a"}, Score: 1}}
	entities := func(n int) []core.EntityHit { return make([]core.EntityHit, n) }

	tests := []struct {
		name string
		rc   core.RAGContext
		want float32
	}{
		{name: "empty", rc: core.RAGContext{Channels: []core.ChannelStatus{ok}}, want: 0},
		{name: "chunks only", rc: core.RAGContext{Chunks: chunks, Channels: []core.ChannelStatus{ok}}, want: 0.2},
		{name: "two entities", rc: core.RAGContext{Entities: entities(2), Channels: []core.ChannelStatus{ok}}, want: 0.5},
		{name: "capped", rc: core.RAGContext{Entities: entities(10), Channels: []core.ChannelStatus{ok}}, want: 1},
		{name: "half the channels failed", rc: core.RAGContext{Entities: entities(2), Channels: []core.ChannelStatus{ok, failed}}, want: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DefaultConfidence(&tt.rc), 1e-6)
		})
	}
}
