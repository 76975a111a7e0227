package neo4j

import (
	"fmt"
	"strings"
	"sync"

	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
)

// Index names shared by DDL and search queries.
const (
	vectorIndex       = "chunk_embeddings"
	chunkTextIndex    = "chunk_text"
	entitySearchIndex = "entity_search"
)

const (
	mergeDocumentQuery = `
MERGE (d:Document {id: $id})
ON CREATE SET d.created_at = datetime()
SET d.name = $name, d.size = $size, d.ingested_at = $ingested_at, d += $metadata`

	mergeChunkQuery = `
MERGE (c:Chunk {id: $id})
WITH c, coalesce(c.text = $text, false) AS unchanged
OPTIONAL MATCH (c)<-[m:MENTIONED_IN]-()
WITH c, unchanged, collect(m) AS mentions
FOREACH (m IN CASE WHEN unchanged THEN [] ELSE mentions END | DELETE m)
SET c.embedding = CASE WHEN $embedding IS NULL AND unchanged THEN c.embedding ELSE $embedding END
SET c.text = $text, c.document_id = $document_id, c.chunk_index = $chunk_index, c += $metadata
WITH c
MATCH (d:Document {id: $document_id})
MERGE (c)-[:FROM_DOCUMENT]->(d)`

	documentQuery = `
MATCH (d:Document {id: $id})
RETURN properties(d) AS props`

	chunkColumns = `c.id AS id, c.document_id AS document_id, c.chunk_index AS chunk_index, c.text AS text`

	vectorSearchQuery = `
CALL db.index.vector.queryNodes('` + vectorIndex + `', $k, $embedding)
YIELD node AS c, score
RETURN ` + chunkColumns + `, score
ORDER BY score DESC`

	keywordSearchQuery = `
CALL db.index.fulltext.queryNodes('` + chunkTextIndex + `', $query)
YIELD node AS c, score
RETURN ` + chunkColumns + `, score
ORDER BY score DESC
LIMIT $k`

	entitySearchQuery = `
CALL db.index.fulltext.queryNodes('` + entitySearchIndex + `', $query)
YIELD node, score
RETURN labels(node) AS labels, properties(node) AS props, score
ORDER BY score DESC
LIMIT $k`

	chunksQuery = `
MATCH (c:Chunk)
WHERE c.id > $after
RETURN ` + chunkColumns + `, c.embedding AS embedding, properties(c) AS props
ORDER BY c.id
LIMIT $limit`

	deleteDocumentQuery = `
MATCH (d:Document {id: $id})
OPTIONAL MATCH (c:Chunk)-[:FROM_DOCUMENT]->(d)
WITH d, collect(c) AS chunks
FOREACH (c IN chunks | DETACH DELETE c)
DETACH DELETE d
RETURN size(chunks) AS chunks`

	pruneChunksQuery = `
OPTIONAL MATCH (c:Chunk {document_id: $document_id})
WHERE c.chunk_index >= $keep
WITH collect(c) AS chunks
FOREACH (c IN chunks | DETACH DELETE c)
RETURN size(chunks) AS chunks`

	labelStatsQuery = `
MATCH (n)
RETURN labels(n)[0] AS label, count(*) AS count`

	relationshipStatsQuery = `
MATCH ()-[r]->()
RETURN type(r) AS type, count(*) AS count`

	vectorIndexOptionsQuery = `
SHOW INDEXES YIELD name, options
WHERE name = '` + vectorIndex + `'
RETURN options`
)

// queries renders Cypher that needs labels or relationship types in its text.
// Every token is checked against the schema before it is interpolated, and
// rendered statements are cached per token combination.
type queries struct {
	schema *schema.Schema
	cache  sync.Map
}

func newQueries(s *schema.Schema) *queries {
	return &queries{schema: s}
}

func (q *queries) render(key string, build func() string) string {
	if cached, ok := q.cache.Load(key); ok {
		return cached.(string)
	}
	query := build()
	q.cache.Store(key, query)
	return query
}

func (q *queries) label(label string) error {
	if !q.schema.HasLabel(label) {
		return fmt.Errorf("%w: entity type %q", storage.ErrUnknownLabel, label)
	}
	return nil
}

func (q *queries) relationship(relType string) error {
	if !q.schema.HasRelationship(relType) {
		return fmt.Errorf("%w: relationship type %q", storage.ErrUnknownLabel, relType)
	}
	return nil
}

// mergeEntity merges a node by name. An empty description keeps the stored one.
func (q *queries) mergeEntity(label string) (string, error) {
	if err := q.label(label); err != nil {
		return "", err
	}
	return q.render("entity:"+label, func() string {
		return fmt.Sprintf(`
MERGE (e:%s {name: $name})
ON CREATE SET e.created_at = datetime()
SET e += $properties, e.updated_at = datetime(),
    e.description = CASE WHEN $description = '' THEN coalesce(e.description, '') ELSE $description END`, label)
	}), nil
}

func (q *queries) entity(label string) (string, error) {
	if err := q.label(label); err != nil {
		return "", err
	}
	return q.render("get:"+label, func() string {
		return fmt.Sprintf(`
MATCH (e:%s {name: $name})
RETURN properties(e) AS props`, label)
	}), nil
}

func (q *queries) linkMention(label string) (string, error) {
	if err := q.label(label); err != nil {
		return "", err
	}
	return q.render("mention:"+label, func() string {
		return fmt.Sprintf(`
MATCH (e:%s {name: $name})
MATCH (c:Chunk {id: $chunk_id})
MERGE (e)-[:MENTIONED_IN]->(c)`, label)
	}), nil
}

// mergeRelationship returns one row when both endpoints exist and none otherwise.
func (q *queries) mergeRelationship(source, relType, target string) (string, error) {
	for _, label := range []string{source, target} {
		if err := q.label(label); err != nil {
			return "", err
		}
	}
	if err := q.relationship(relType); err != nil {
		return "", err
	}
	return q.render("rel:"+source+":"+relType+":"+target, func() string {
		return fmt.Sprintf(`
MATCH (a:%s {name: $source})
MATCH (b:%s {name: $target})
MERGE (a)-[r:%s]->(b)
SET r += $properties
RETURN count(r) AS linked`, source, target, relType)
	}), nil
}

func (q *queries) relatedEntities(label string) (string, error) {
	if err := q.label(label); err != nil {
		return "", err
	}
	return q.render("related:"+label, func() string {
		return fmt.Sprintf(`
MATCH (n:%s {name: $name})-[r]-(related)
WHERE NOT related:Chunk AND NOT related:Document
RETURN labels(related) AS labels, related.name AS name, type(r) AS relationship
LIMIT $limit`, label)
	}), nil
}

// allowed keeps the relationship types that the schema declares.
func (q *queries) allowed(relTypes []string) []string {
	var out []string
	for _, t := range relTypes {
		if q.schema.HasRelationship(t) {
			out = append(out, t)
		}
	}
	return out
}

// diseasePaths returns "" when the schema cannot express the traversal.
func (q *queries) diseasePaths() string {
	types := q.allowed(schema.SymptomDiseaseRelationships)
	if len(types) == 0 || !q.schema.HasLabel(schema.LabelSymptom) || !q.schema.HasLabel(schema.LabelDisease) {
		return ""
	}
	return q.render("paths", func() string {
		return fmt.Sprintf(`
UNWIND $symptoms AS symptom_name
MATCH (s:%s)-[:%s]-(d:%s)
WHERE toLower(s.name) CONTAINS toLower(symptom_name)
RETURN d.name AS disease, d.description AS description,
       collect(DISTINCT s.name) AS symptoms, count(DISTINCT s) AS symptom_count
ORDER BY symptom_count DESC
LIMIT 10`, schema.LabelSymptom, strings.Join(types, "|"), schema.LabelDisease)
	})
}

func (q *queries) redFlags() string {
	types := q.allowed(schema.RedFlagRelationships)
	if len(types) == 0 || !q.schema.HasLabel(schema.LabelSymptom) || !q.schema.HasLabel(schema.LabelRedFlag) {
		return ""
	}
	return q.render("redflags", func() string {
		return fmt.Sprintf(`
UNWIND $symptoms AS symptom_name
MATCH (s:%s)-[:%s]->(rf:%s)
WHERE toLower(s.name) CONTAINS toLower(symptom_name)
RETURN rf.name AS red_flag, rf.description AS description,
       collect(DISTINCT s.name) AS symptoms`, schema.LabelSymptom, strings.Join(types, "|"), schema.LabelRedFlag)
	})
}

// diseaseDetails only includes the OPTIONAL MATCH clauses the schema can satisfy.
func (q *queries) diseaseDetails() string {
	return q.render("details", func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "\nMATCH (d:%s {name: $disease})", schema.LabelDisease)
		columns := []string{"d.name AS disease", "d.description AS description"}

		optional := []struct {
			pattern string
			label   string
			relType string
			column  string
		}{
			{"(d)<-[:%s]-(x0:%s)", schema.LabelSymptom, schema.RelIndicates, "symptoms"},
			{"(d)<-[:%s]-(x1:%s)", schema.LabelDrug, schema.RelTreats, "treatments"},
			{"(d)-[:%s]->(x2:%s)", schema.LabelRedFlag, schema.RelRedFlagFor, "red_flags"},
			{"(d)-[:%s]->(x3:%s)", schema.LabelTriageLevel, schema.RelRequiresUrgency, "urgency"},
		}
		for i, o := range optional {
			if !q.schema.HasLabel(o.label) || !q.schema.HasRelationship(o.relType) {
				continue
			}
			fmt.Fprintf(&b, "\nOPTIONAL MATCH "+o.pattern, o.relType, o.label)
			columns = append(columns, fmt.Sprintf("collect(DISTINCT x%d.name) AS %s", i, o.column))
		}
		b.WriteString("\nRETURN " + strings.Join(columns, ", "))
		return b.String()
	})
}

func (q *queries) drugInteractions() string {
	if !q.schema.HasLabel(schema.LabelDrug) || !q.schema.HasRelationship(schema.RelInteractsWith) {
		return ""
	}
	return q.render("interactions", func() string {
		return fmt.Sprintf(`
MATCH (d1:%[1]s)-[r:%[2]s]-(d2:%[1]s)
WHERE toLower(d1.name) CONTAINS toLower($drug_a)
  AND ($drug_b = '' OR toLower(d2.name) CONTAINS toLower($drug_b))
RETURN d1.name AS drug_a, d2.name AS drug_b, r.severity AS severity, r.description AS description`,
			schema.LabelDrug, schema.RelInteractsWith)
	})
}

// schemaStatements returns the idempotent DDL for the schema and a vector index of dimension.
func (q *queries) schemaStatements(dimension int) []string {
	labels := q.schema.EntityTypes()
	statements := []string{
		"CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE",
		"CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE",
	}
	for _, label := range labels {
		statements = append(statements, fmt.Sprintf(
			"CREATE CONSTRAINT %s_name IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE",
			strings.ToLower(label), label))
	}
	statements = append(statements,
		"CREATE INDEX chunk_doc_id IF NOT EXISTS FOR (c:Chunk) ON (c.document_id)",
		"CREATE FULLTEXT INDEX "+chunkTextIndex+" IF NOT EXISTS FOR (c:Chunk) ON EACH [c.text]",
		fmt.Sprintf("CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [n.name, n.description]",
			entitySearchIndex, strings.Join(labels, "|")),
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (c:Chunk) ON c.embedding "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			vectorIndex, dimension),
	)
	return statements
}

var luceneEscaper = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`,
)

// luceneQuery turns free text into a full-text query of OR-ed, escaped terms.
func luceneQuery(terms []string) string {
	escaped := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" {
			escaped = append(escaped, luceneEscaper.Replace(t))
		}
	}
	return strings.Join(escaped, " OR ")
}
