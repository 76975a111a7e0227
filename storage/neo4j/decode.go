package neo4j

import (
	"fmt"
	"slices"
	"strings"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
)

// Metadata keys are stored on nodes under this prefix so they cannot
// collide with the node's own properties.
const metadataPrefix = "meta."

// Node properties that are not part of an entity's property map.
var reservedProperties = []string{"name", "description", "created_at", "updated_at"}

func value(record *neo.Record, key string) any {
	v, _ := record.Get(key)
	return v
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat32(v any) float32 {
	switch f := v.(type) {
	case float64:
		return float32(f)
	case float32:
		return f
	case int64:
		return float32(f)
	}
	return 0
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		out = append(out, asString(item))
	}
	return out
}

func asVector(v any) []float32 {
	switch list := v.(type) {
	case []any:
		if len(list) == 0 {
			return nil
		}
		vec := make([]float32, len(list))
		for i, item := range list {
			vec[i] = asFloat32(item)
		}
		return vec
	case []float64:
		if len(list) == 0 {
			return nil
		}
		vec := make([]float32, len(list))
		for i, f := range list {
			vec[i] = float32(f)
		}
		return vec
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// toParam converts a vector into the list type bolt sends as floats.
func toParam(vec []float32) any {
	if vec == nil {
		return nil
	}
	out := make([]float64, len(vec))
	for i, f := range vec {
		out[i] = float64(f)
	}
	return out
}

func stringMapParam(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metadataParam(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[metadataPrefix+k] = v
	}
	return out
}

// metadataFrom extracts the prefixed metadata keys from node properties.
func metadataFrom(props map[string]any) map[string]string {
	var out map[string]string
	for k, v := range props {
		if key, ok := strings.CutPrefix(k, metadataPrefix); ok {
			if out == nil {
				out = make(map[string]string)
			}
			out[key] = asString(v)
		}
	}
	return out
}

// entityFrom builds an entity from node properties.
func entityFrom(label string, props map[string]any) *core.Entity {
	entity := &core.Entity{
		Type:        label,
		Name:        asString(props["name"]),
		Description: asString(props["description"]),
	}
	for k, v := range props {
		if slices.Contains(reservedProperties, k) {
			continue
		}
		if entity.Properties == nil {
			entity.Properties = make(map[string]string)
		}
		entity.Properties[k] = asString(v)
	}
	return entity
}

// schemaLabel picks the first node label that the schema declares.
func schemaLabel(s *schema.Schema, labels []string) string {
	for _, l := range labels {
		if s.HasLabel(l) {
			return l
		}
	}
	if len(labels) > 0 {
		return labels[0]
	}
	return ""
}

func chunkFrom(record *neo.Record) *core.Chunk {
	chunk := &core.Chunk{
		ID:         asString(value(record, "id")),
		DocumentID: asString(value(record, "document_id")),
		Index:      asInt(value(record, "chunk_index")),
		Text:       asString(value(record, "text")),
	}
	if _, ok := record.Get("embedding"); ok {
		chunk.Vector = asVector(value(record, "embedding"))
	}
	if props, ok := record.Get("props"); ok {
		chunk.Metadata = metadataFrom(asMap(props))
	}
	return chunk
}

func documentFrom(props map[string]any) *core.Document {
	doc := &core.Document{
		ID:       asString(props["id"]),
		Name:     asString(props["name"]),
		Size:     asInt(props["size"]),
		Metadata: metadataFrom(props),
	}
	if micros, ok := props["ingested_at"].(int64); ok {
		doc.IngestedAt = time.UnixMicro(micros).UTC()
	}
	return doc
}
