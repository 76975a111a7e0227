package ai

// ExtractedEntity is an entity as reported by an extraction model.
// ID is local to one extraction and is only used to resolve relationship endpoints.
type ExtractedEntity struct {
	ID          string
	Name        string
	Type        string
	Description string
	Properties  map[string]string
}

// ExtractedRelationship links two entities of the same extraction by their local IDs.
type ExtractedRelationship struct {
	Source     string
	Target     string
	Type       string
	Properties map[string]string
}

// Extraction is the decoded result of one extraction call.
type Extraction struct {
	Entities      []ExtractedEntity
	Relationships []ExtractedRelationship
}

// Empty reports whether the extraction found nothing.
func (e *Extraction) Empty() bool {
	return e == nil || (len(e.Entities) == 0 && len(e.Relationships) == 0)
}
