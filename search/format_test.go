package search

import (
	"strings"
	"testing"

	"github.com/poiesic/medrag/core"
	"github.com/stretchr/testify/assert"
)

func TestFormatContext(t *testing.T) {
	rc := &core.RAGContext{
		Chunks: []core.ScoredChunk{
			{Chunk: &core.Chunk{Text: "Malaria causes fever."}},
			{Chunk: &core.Chunk{Text: strings.Repeat("é", 600)}},
		},
		Entities: []core.EntityHit{
			{Entity: &core.Entity{Type: "Disease", Name: "malaria", Description: "Parasitic infection"}},
			{Entity: &core.Entity{Type: "Symptom", Name: "fever"}},
		},
		GraphPaths: []string{"Symptoms [fever] may indicate malaria"},
	}

	want := "## Relevant Medical Knowledge:\n" +
		"[Source 1]: Malaria causes fever....\n" +
		"[Source 2]: " + strings.Repeat("é", 500) + "...\n" +
		"\n## Related Medical Entities:\n" +
		"- Disease: malaria - Parasitic infection\n" +
		"- Symptom: fever\n" +
		"\n## Clinical Relationships:\n" +
		"- Symptoms [fever] may indicate malaria\n"
	assert.Equal(t, want, FormatContext(rc))
}

func TestFormatContext_LimitsEntities(t *testing.T) {
	rc := &core.RAGContext{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rc.Entities = append(rc.Entities, core.EntityHit{Entity: &core.Entity{Type: "Symptom", Name: name}})
	}

	out := FormatContext(rc)
	assert.Equal(t, MaxFormattedEntities, strings.Count(out, "- Symptom:"))
	assert.NotContains(t, out, "Relevant Medical Knowledge")
	assert.NotContains(t, out, "Clinical Relationships")
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Empty(t, FormatContext(nil))
	assert.Empty(t, FormatContext(&core.RAGContext{}))
}
