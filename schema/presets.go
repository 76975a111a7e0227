package schema

import (
	"fmt"
	"strings"
)

// Labels and relationship types that the graph traversals rely on.
const (
	LabelDisease     = "Disease"
	LabelSymptom     = "Symptom"
	LabelDrug        = "Drug"
	LabelRedFlag     = "RedFlag"
	LabelTriageLevel = "TriageLevel"

	RelIndicates       = "INDICATES"
	RelManifestsAs     = "MANIFESTS_AS"
	RelAssociatedWith  = "ASSOCIATED_WITH"
	RelTreats          = "TREATS"
	RelInteractsWith   = "INTERACTS_WITH"
	RelRedFlagFor      = "RED_FLAG_FOR"
	RelRequiresUrgency = "REQUIRES_URGENCY"
)

// SymptomDiseaseRelationships connect symptoms and diseases in either direction.
var SymptomDiseaseRelationships = []string{RelIndicates, RelManifestsAs, RelAssociatedWith}

// RedFlagRelationships lead from a symptom to a red flag.
var RedFlagRelationships = []string{RelRedFlagFor, RelIndicates}

// MedicalEntityTypes are the node labels of the general medical schema.
var MedicalEntityTypes = []string{
	// Clinical entities
	"Disease", "Symptom", "Sign", "Syndrome", "Condition",
	// Treatments
	"Drug", "Medication", "Procedure", "Therapy",
	// Anatomy
	"BodyPart", "Organ", "System",
	// Measurements
	"VitalSign", "LabTest", "DiagnosticTest",
	// Risk and triage
	"RiskFactor", "RedFlag", "TriageLevel",
	// Context
	"AgeGroup", "Guideline",
}

// MedicalRelationshipTypes are the edge types of the general medical schema.
var MedicalRelationshipTypes = []string{
	// Symptom and disease
	"INDICATES", "MANIFESTS_AS", "ASSOCIATED_WITH",
	// Drugs
	"TREATS", "INDICATED_FOR", "CONTRAINDICATED_FOR", "INTERACTS_WITH",
	// Causality
	"CAUSES", "RISK_FACTOR_FOR", "COMPLICATION_OF", "PROGRESSES_TO",
	// Anatomy
	"AFFECTS", "LOCATED_IN", "PART_OF",
	// Diagnostics
	"DIAGNOSED_BY", "MEASURED_BY",
	// Triage
	"REQUIRES_URGENCY", "RED_FLAG_FOR", "ESCALATES_TO",
	// Provenance
	"MENTIONED_IN", "EXTRACTED_FROM",
	// Hierarchy
	"SUBTYPE_OF", "CATEGORY",
}

var (
	// Medical is the default strict schema.
	Medical = MustNew("medical", MedicalEntityTypes, MedicalRelationshipTypes, true)

	// Triage restricts extraction to symptom, sign and urgency knowledge.
	Triage = MustNew("triage",
		[]string{"Disease", "Symptom", "Sign", "RedFlag", "TriageLevel", "VitalSign", "BodyPart", "RiskFactor", "AgeGroup"},
		[]string{"INDICATES", "MANIFESTS_AS", "RED_FLAG_FOR", "REQUIRES_URGENCY", "AFFECTS", "RISK_FACTOR_FOR", "ASSOCIATED_WITH"},
		true)

	// Drug restricts extraction to pharmacological knowledge.
	Drug = MustNew("drug",
		[]string{"Drug", "Medication", "Disease", "Symptom", "Condition"},
		[]string{"TREATS", "INDICATED_FOR", "CONTRAINDICATED_FOR", "INTERACTS_WITH", "CAUSES"},
		true)

	// Full accepts the medical vocabulary and maps anything else to fallbacks.
	Full = MustNew("full", MedicalEntityTypes, MedicalRelationshipTypes, false)
)

// ByName returns a preset schema by name. The empty name selects Medical.
func ByName(name string) (*Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "medical":
		return Medical, nil
	case "triage":
		return Triage, nil
	case "drug":
		return Drug, nil
	case "full":
		return Full, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
}
