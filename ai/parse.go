// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawEntity and rawRelationship match the structure requested from the model.
// IDs may come back as numbers, so they are decoded loosely.
type rawEntity struct {
	ID          any            `json:"id"`
	Name        any            `json:"name"`
	Type        string         `json:"type"`
	Description any            `json:"description"`
	Properties  map[string]any `json:"properties"`
}

type rawRelationship struct {
	Source     any            `json:"source"`
	Target     any            `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type rawExtraction struct {
	Entities      []rawEntity       `json:"entities"`
	Relationships []rawRelationship `json:"relationships"`
}

// ParseExtraction decodes an extraction model reply.
//
// Strategies are tried in order: the whole reply, the first fenced code
// block, then the substring between the first '{' and the last '}'. Each
// candidate is tried verbatim and after repairJSON. If nothing decodes,
// ErrMalformedExtraction is returned.
func ParseExtraction(response string) (*Extraction, error) {
	var lastErr error
	for _, candidate := range extractionCandidates(response) {
		for _, text := range []string{candidate, repairJSON(candidate)} {
			var raw rawExtraction
			if err := json.Unmarshal([]byte(text), &raw); err != nil {
				lastErr = err
				continue
			}
			return raw.convert(), nil
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedExtraction)
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, lastErr)
}

func extractionCandidates(response string) []string {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return nil
	}

	candidates := []string{trimmed}

	if fenced, ok := fencedBlock(trimmed); ok {
		candidates = append(candidates, fenced)
	}

	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}

	return candidates
}

// fencedBlock returns the body of the first ``` fence, with or without a language tag.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

func (r *rawExtraction) convert() *Extraction {
	out := &Extraction{
		Entities:      make([]ExtractedEntity, 0, len(r.Entities)),
		Relationships: make([]ExtractedRelationship, 0, len(r.Relationships)),
	}

	for _, e := range r.Entities {
		props := stringifyProperties(e.Properties)
		name := stringify(e.Name)
		id := stringify(e.ID)
		description := stringify(e.Description)
		if description == "" {
			description = props["description"]
		}
		delete(props, "description")
		delete(props, "name")
		if name == "" {
			name = id
		}
		if id == "" {
			id = name
		}
		out.Entities = append(out.Entities, ExtractedEntity{
			ID:          id,
			Name:        name,
			Type:        e.Type,
			Description: description,
			Properties:  props,
		})
	}

	for _, rel := range r.Relationships {
		out.Relationships = append(out.Relationships, ExtractedRelationship{
			Source:     stringify(rel.Source),
			Target:     stringify(rel.Target),
			Type:       rel.Type,
			Properties: stringifyProperties(rel.Properties),
		})
	}

	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func stringifyProperties(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s := stringify(v); s != "" {
			out[k] = s
		}
	}
	return out
}

// repairJSON attempts to fix common JSON formatting issues from LLM responses.
// It specifically handles missing opening quotes before keys in JSON objects.
func repairJSON(s string) string {
	// Pattern: after { or , followed by optional whitespace, then a word followed by ":
	// Example: `, type":` -> `, "type":`
	result := []rune(s)
	fixed := make([]rune, 0, len(result)+100)

	i := 0
	for i < len(result) {
		ch := result[i]

		if ch != '{' && ch != ',' {
			fixed = append(fixed, ch)
			i++
			continue
		}

		fixed = append(fixed, ch)
		i++

		for i < len(result) && (result[i] == ' ' || result[i] == '\n' || result[i] == '\t' || result[i] == '\r') {
			fixed = append(fixed, result[i])
			i++
		}

		if i >= len(result) || result[i] == '"' || !isLetter(result[i]) {
			continue
		}

		keyStart := i
		for i < len(result) && (isLetter(result[i]) || result[i] == '_') {
			i++
		}

		// A key followed by `":` is missing only its opening quote.
		if i+1 < len(result) && result[i] == '"' && result[i+1] == ':' {
			fixed = append(fixed, '"')
		}
		fixed = append(fixed, result[keyStart:i]...)
	}

	return string(fixed)
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
