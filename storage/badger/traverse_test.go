package badger

import (
	"context"
	"testing"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedGraph(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	entities := []*core.Entity{
		{Type: "Disease", Name: "malaria", Description: "Parasitic infection"},
		{Type: "Disease", Name: "dengue", Description: "Viral infection"},
		{Type: "Symptom", Name: "high fever"},
		{Type: "Symptom", Name: "chills"},
		{Type: "Symptom", Name: "joint pain"},
		{Type: "RedFlag", Name: "altered consciousness", Description: "Possible cerebral malaria"},
		{Type: "Drug", Name: "artemether"},
		{Type: "Drug", Name: "warfarin"},
		{Type: "Drug", Name: "aspirin"},
		{Type: "TriageLevel", Name: "urgent"},
	}
	for _, e := range entities {
		require.NoError(t, store.UpsertEntity(ctx, e))
	}

	key := func(typ, name string) core.EntityKey { return core.EntityKey{Type: typ, Name: name} }
	rels := []*core.Relationship{
		{Source: key("Symptom", "high fever"), Target: key("Disease", "malaria"), Type: "INDICATES"},
		{Source: key("Symptom", "chills"), Target: key("Disease", "malaria"), Type: "INDICATES"},
		{Source: key("Disease", "dengue"), Target: key("Symptom", "high fever"), Type: "MANIFESTS_AS"},
		{Source: key("Symptom", "joint pain"), Target: key("Disease", "dengue"), Type: "ASSOCIATED_WITH"},
		{Source: key("Symptom", "high fever"), Target: key("RedFlag", "altered consciousness"), Type: "RED_FLAG_FOR"},
		{Source: key("Drug", "artemether"), Target: key("Disease", "malaria"), Type: "TREATS"},
		{Source: key("Disease", "malaria"), Target: key("TriageLevel", "urgent"), Type: "REQUIRES_URGENCY"},
		{Source: key("Drug", "warfarin"), Target: key("Drug", "aspirin"), Type: "INTERACTS_WITH",
			Properties: map[string]string{"severity": "major", "description": "Bleeding risk"}},
	}
	for _, r := range rels {
		ok, err := store.UpsertRelationship(ctx, r)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSymptomToDiseasePaths(t *testing.T) {
	store := newTestStore(t, nil)
	seedGraph(t, store)
	ctx := context.Background()

	paths, err := store.SymptomToDiseasePaths(ctx, []string{"Fever", "chills"})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, "malaria", paths[0].Disease)
	assert.Equal(t, 2, paths[0].MatchCount)
	assert.ElementsMatch(t, []string{"high fever", "chills"}, paths[0].Symptoms)
	assert.Equal(t, "Parasitic infection", paths[0].Description)

	assert.Equal(t, "dengue", paths[1].Disease, "MANIFESTS_AS is matched in reverse direction")
	assert.Equal(t, []string{"high fever"}, paths[1].Symptoms)

	paths, err = store.SymptomToDiseasePaths(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRedFlagsFor(t *testing.T) {
	store := newTestStore(t, nil)
	seedGraph(t, store)

	flags, err := store.RedFlagsFor(context.Background(), []string{"fever"})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "altered consciousness", flags[0].Name)
	assert.Equal(t, "Possible cerebral malaria", flags[0].Description)
	assert.Equal(t, []string{"high fever"}, flags[0].Symptoms)

	flags, err = store.RedFlagsFor(context.Background(), []string{"joint pain"})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestDiseaseDetails(t *testing.T) {
	store := newTestStore(t, nil)
	seedGraph(t, store)

	details, err := store.DiseaseDetails(context.Background(), "Malaria")
	require.NoError(t, err)
	assert.Equal(t, "malaria", details.Disease)
	assert.ElementsMatch(t, []string{"high fever", "chills"}, details.Symptoms)
	assert.Equal(t, []string{"artemether"}, details.Treatments)
	assert.Equal(t, []string{"urgent"}, details.Urgency)
	assert.Empty(t, details.RedFlags)

	_, err = store.DiseaseDetails(context.Background(), "scurvy")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDrugInteractions(t *testing.T) {
	store := newTestStore(t, nil)
	seedGraph(t, store)
	ctx := context.Background()

	got, err := store.DrugInteractions(ctx, "Aspirin", "warfarin")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.DrugInteraction{DrugA: "aspirin", DrugB: "warfarin", Severity: "major", Description: "Bleeding risk"}, got[0])

	got, err = store.DrugInteractions(ctx, "warfarin", "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.DrugInteractions(ctx, "artemether", "aspirin")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.DrugInteractions(ctx, "", "aspirin")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestRelatedEntities(t *testing.T) {
	store := newTestStore(t, nil)
	seedGraph(t, store)
	ctx := context.Background()

	related, err := store.RelatedEntities(ctx, core.EntityKey{Type: "Disease", Name: "malaria"}, 10)
	require.NoError(t, err)
	assert.Len(t, related, 4)
	assert.Contains(t, related, core.RelatedEntity{
		Entity:       core.EntityKey{Type: "Drug", Name: "artemether"},
		Relationship: "TREATS",
	})

	related, err = store.RelatedEntities(ctx, core.EntityKey{Type: "Disease", Name: "malaria"}, 2)
	require.NoError(t, err)
	assert.Len(t, related, 2)
}
