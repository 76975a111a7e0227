package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		entities []string
		rels     []string
	}{
		{name: "backtick in label", entities: []string{"Dis`ease"}},
		{name: "space in label", entities: []string{"Body Part"}},
		{name: "injection in relationship", rels: []string{"TREATS]->(x) DETACH DELETE x //"}},
		{name: "leading digit", rels: []string{"1ST"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.entities, tt.rels, true)
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}
}

func TestEntityLabel(t *testing.T) {
	tests := []struct {
		raw        string
		wantLabel  string
		wantMapped bool
		wantOK     bool
	}{
		{"Disease", "Disease", false, true},
		{"disease", "Disease", false, true},
		{"body part", "BodyPart", false, true},
		{"red_flag", "RedFlag", false, true},
		{"Vital-Sign", "VitalSign", false, true},
		{"Gene", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			label, mapped, ok := Medical.EntityLabel(tt.raw)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.wantMapped, mapped)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestRelationshipType(t *testing.T) {
	rel, _, ok := Medical.RelationshipType("indicates")
	require.True(t, ok)
	assert.Equal(t, "INDICATES", rel)

	rel, _, ok = Medical.RelationshipType("risk factor for")
	require.True(t, ok)
	assert.Equal(t, "RISK_FACTOR_FOR", rel)

	_, _, ok = Medical.RelationshipType("CURES")
	assert.False(t, ok)
}

func TestNonStrictFallbacks(t *testing.T) {
	label, mapped, ok := Full.EntityLabel("Gene")
	require.True(t, ok)
	assert.True(t, mapped)
	assert.Equal(t, FallbackLabel, label)

	rel, mapped, ok := Full.RelationshipType("encodes")
	require.True(t, ok)
	assert.True(t, mapped)
	assert.Equal(t, FallbackRelationship, rel)

	assert.True(t, Full.HasLabel(FallbackLabel))
	assert.True(t, Full.HasRelationship(FallbackRelationship))
	assert.False(t, Medical.HasLabel(FallbackLabel))
}

func TestHasLabel_ExactOnly(t *testing.T) {
	assert.True(t, Medical.HasLabel("Disease"))
	assert.False(t, Medical.HasLabel("disease"))
	assert.False(t, Medical.HasLabel("Disease) DETACH DELETE (n"))
}

func TestPresets(t *testing.T) {
	assert.Len(t, Medical.EntityTypes(), len(MedicalEntityTypes))
	assert.Len(t, Medical.RelationshipTypes(), len(MedicalRelationshipTypes))
	assert.True(t, Medical.Strict())
	assert.False(t, Full.Strict())

	_, _, ok := Triage.EntityLabel("Drug")
	assert.False(t, ok)
	_, _, ok = Drug.EntityLabel("Drug")
	assert.True(t, ok)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]*Schema{"": Medical, "medical": Medical, "Triage": Triage, "drug": Drug, "full": Full} {
		got, err := ByName(name)
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
	_, err := ByName("oncology")
	assert.ErrorIs(t, err, ErrUnknownSchema)
}
