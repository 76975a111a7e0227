package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as 16 lowercase hex digits.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// DocumentID derives the stable document identifier for a source.
// Path-based ingestion passes the file name, text ingestion passes the text.
func DocumentID(source string) string {
	return IDFromContent(source).String()
}

// ChunkID builds the identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// NormalizeName lower-cases a name, turns control characters into spaces and
// collapses internal whitespace. Entity identity is (type, normalized name).
func NormalizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, strings.ToLower(name))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Document is a unit of ingested source material.
type Document struct {
	ID         string
	Name       string
	Size       int // byte length of the source text
	Metadata   map[string]string
	IngestedAt time.Time
}

// Chunk is a contiguous slice of a document's text.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Vector     []float32 // nil until an embedding has been stored
	Metadata   map[string]string
}

// EntityKey identifies an entity by its schema label and normalized name.
type EntityKey struct {
	Type string
	Name string
}

// Tuple returns a string representation of the key as "(Type,Name)".
// This is used for generating deterministic IDs.
func (k EntityKey) Tuple() string {
	return "(" + k.Type + "," + k.Name + ")"
}

// Entity is a typed medical concept extracted from text.
type Entity struct {
	Type        string
	Name        string
	Description string
	Properties  map[string]string
}

// Key returns the identity of the entity.
func (e *Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, Name: e.Name}
}

// Relationship is a directed typed edge between two entities.
type Relationship struct {
	Source     EntityKey
	Target     EntityKey
	Type       string
	Properties map[string]string
}

// Retrieval methods recorded on merged results.
const (
	MethodSemantic = "semantic"
	MethodKeyword  = "keyword"
)

// ChunkHit is a single result of a store-level chunk search.
type ChunkHit struct {
	Chunk *Chunk
	Score float32
}

// ScoredChunk is a chunk with its retrieval score and the methods that found it.
// Scores are annotations of a single retrieval and are never persisted.
type ScoredChunk struct {
	Chunk   *Chunk
	Score   float32
	Methods []string
}

// HasMethod reports whether the chunk was found by the given method.
func (s *ScoredChunk) HasMethod(method string) bool {
	for _, m := range s.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// EntityHit is an entity matched by name or description.
type EntityHit struct {
	Entity *Entity
	Score  float32
}

// DiseasePath groups the symptoms in the graph that point at one disease.
type DiseasePath struct {
	Disease     string
	Description string
	Symptoms    []string
	MatchCount  int
}

// RedFlag is a warning sign reachable from a symptom.
type RedFlag struct {
	Name        string
	Description string
	Symptoms    []string
}

// DiseaseDetails collects the neighbourhood of a disease node.
type DiseaseDetails struct {
	Disease     string
	Description string
	Symptoms    []string
	Treatments  []string
	RedFlags    []string
	Urgency     []string
}

// DrugInteraction describes an INTERACTS_WITH edge between two drugs.
type DrugInteraction struct {
	DrugA       string
	DrugB       string
	Severity    string
	Description string
}

// RelatedEntity is a neighbour of an entity reached over any relationship.
type RelatedEntity struct {
	Entity       EntityKey
	Relationship string
}

// Condition is a disease ranked against a set of reported symptoms.
type Condition struct {
	Disease         string
	Description     string
	Probability     float32
	MatchedSymptoms []string
}

// ChannelStatus reports how one retrieval channel fared.
type ChannelStatus struct {
	Name    string
	Results int
	Err     error
	Elapsed time.Duration
}

// OK reports whether the channel completed without error.
func (c ChannelStatus) OK() bool {
	return c.Err == nil
}

// RAGContext is the fused evidence assembled for one query.
type RAGContext struct {
	Query      string
	Chunks     []ScoredChunk
	Entities   []EntityHit
	GraphPaths []string
	TotalScore float32
	Confidence float32
	Channels   []ChannelStatus
}

// IngestStats counts what happened while ingesting one document.
type IngestStats struct {
	DocumentID            string
	Chunks                int
	ChunksEmbedded        int
	ChunksStored          int
	ChunksExtracted       int
	EntitiesCreated       int
	RelationshipsCreated  int
	EntitiesDropped       int
	RelationshipsDropped  int
	DanglingRelationships int
	EmbeddingFailures     int
	ExtractionFailures    int
	ChunkFailures         int
	ChunksPruned          int
}

// GraphStats summarizes the contents of a graph store.
type GraphStats struct {
	Documents     int
	Chunks        int
	Labels        map[string]int
	Relationships map[string]int
}
