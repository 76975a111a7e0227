package storage

import (
	"testing"
	"time"

	"github.com/poiesic/medrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &core.Document{
		ID:         core.DocumentID("malaria.txt"),
		Name:       "malaria.txt",
		Size:       1234,
		Metadata:   map[string]string{"source": "who", "lang": "en"},
		IngestedAt: now,
	}

	decoded, err := UnmarshalDocument(MarshalDocument(doc))
	require.NoError(t, err)
	assert.Equal(t, doc, decoded)
}

func TestChunkRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{
			name: "with vector",
			chunk: &core.Chunk{
				ID: "abc_0", DocumentID: "abc", Index: 0,
				Text:     "Malaria causes fever and chills.",
				Vector:   []float32{0.1, -0.25, 0, 1},
				Metadata: map[string]string{"page": "1"},
			},
		},
		{
			name:  "without vector",
			chunk: &core.Chunk{ID: "abc_7", DocumentID: "abc", Index: 7, Text: "é ü ß"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalChunk(MarshalChunk(tt.chunk))
			require.NoError(t, err)
			assert.Equal(t, tt.chunk, decoded)
		})
	}
}

func TestEntityAndRelationshipRoundTrip(t *testing.T) {
	entity := &core.Entity{
		Type: "Disease", Name: "malaria", Description: "Parasitic infection",
		Properties: map[string]string{"icd10": "B54"},
	}
	gotEntity, err := UnmarshalEntity(MarshalEntity(entity))
	require.NoError(t, err)
	assert.Equal(t, entity, gotEntity)

	rel := &core.Relationship{
		Source: core.EntityKey{Type: "Symptom", Name: "fever"},
		Target: core.EntityKey{Type: "Disease", Name: "malaria"},
		Type:   "INDICATES",
	}
	gotRel, err := UnmarshalRelationship(MarshalRelationship(rel))
	require.NoError(t, err)
	assert.Equal(t, rel, gotRel)
}

func TestMarshalIsDeterministic(t *testing.T) {
	props := map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}
	e := &core.Entity{Type: "Drug", Name: "aspirin", Properties: props}
	first := MarshalEntity(e)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MarshalEntity(e))
	}
}

func TestUnmarshal_Truncated(t *testing.T) {
	data := MarshalChunk(&core.Chunk{ID: "x_0", DocumentID: "x", Text: "some text", Vector: []float32{1, 2, 3}})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"half", data[:len(data)/2]},
		{"missing last byte", data[:len(data)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalChunk(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}
