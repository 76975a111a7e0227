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


// Package schema declares the entity labels and relationship types a
// knowledge graph may contain.
//
// Graph stores interpolate labels and relationship types into query text,
// so every such token must come from a Schema. A Schema only accepts
// identifiers matching [A-Za-z][A-Za-z0-9_]* when it is built, and its
// lookup methods only ever return those declared identifiers (or the fixed
// fallbacks below), never caller input.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// FallbackLabel is used for unknown entity types in non-strict schemas.
	FallbackLabel = "Concept"

	// FallbackRelationship is used for unknown relationship types in non-strict schemas.
	FallbackRelationship = "RELATED_TO"

	// RawTypeProperty holds the original type of an entity or relationship
	// that was mapped to a fallback.
	RawTypeProperty = "type"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Schema is an allow-list of entity labels and relationship types.
// A Schema is immutable after construction and safe for concurrent use.
type Schema struct {
	name          string
	strict        bool
	entityTypes   []string
	relTypes      []string
	entityLookup  map[string]string // folded form -> declared label
	relationships map[string]bool
}

// New builds a schema. Every entity type and relationship type must be a
// valid identifier; relationship types are stored upper-cased.
func New(name string, entityTypes, relationshipTypes []string, strict bool) (*Schema, error) {
	s := &Schema{
		name:          name,
		strict:        strict,
		entityLookup:  make(map[string]string, len(entityTypes)+1),
		relationships: make(map[string]bool, len(relationshipTypes)+1),
	}

	for _, t := range entityTypes {
		if !identifierPattern.MatchString(t) {
			return nil, fmt.Errorf("%w: entity type %q", ErrInvalidIdentifier, t)
		}
		key := fold(t)
		if _, dup := s.entityLookup[key]; dup {
			continue
		}
		s.entityLookup[key] = t
		s.entityTypes = append(s.entityTypes, t)
	}

	for _, t := range relationshipTypes {
		if !identifierPattern.MatchString(t) {
			return nil, fmt.Errorf("%w: relationship type %q", ErrInvalidIdentifier, t)
		}
		t = strings.ToUpper(t)
		if s.relationships[t] {
			continue
		}
		s.relationships[t] = true
		s.relTypes = append(s.relTypes, t)
	}

	if !strict {
		if _, ok := s.entityLookup[fold(FallbackLabel)]; !ok {
			s.entityLookup[fold(FallbackLabel)] = FallbackLabel
			s.entityTypes = append(s.entityTypes, FallbackLabel)
		}
		if !s.relationships[FallbackRelationship] {
			s.relationships[FallbackRelationship] = true
			s.relTypes = append(s.relTypes, FallbackRelationship)
		}
	}

	return s, nil
}

// MustNew is like New but panics on error. It is intended for package-level presets.
func MustNew(name string, entityTypes, relationshipTypes []string, strict bool) *Schema {
	s, err := New(name, entityTypes, relationshipTypes, strict)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Strict reports whether unknown types are dropped rather than mapped to fallbacks.
func (s *Schema) Strict() bool {
	return s.strict
}

// EntityTypes returns the declared labels in declaration order.
func (s *Schema) EntityTypes() []string {
	return append([]string(nil), s.entityTypes...)
}

// RelationshipTypes returns the declared relationship types in declaration order.
func (s *Schema) RelationshipTypes() []string {
	return append([]string(nil), s.relTypes...)
}

// EntityLabel resolves a raw entity type to a declared label.
// Matching ignores case, spaces, hyphens and underscores, so "body part"
// resolves to "BodyPart". In a strict schema an unknown type reports false.
// In a non-strict schema it resolves to FallbackLabel and mapped is true.
func (s *Schema) EntityLabel(raw string) (label string, mapped bool, ok bool) {
	if l, found := s.entityLookup[fold(raw)]; found {
		return l, false, true
	}
	if s.strict {
		return "", false, false
	}
	return FallbackLabel, true, true
}

// RelationshipType resolves a raw relationship type to a declared type.
// The raw type is upper-cased and spaces and hyphens become underscores.
// Unknown types follow the same strict/non-strict rules as EntityLabel.
func (s *Schema) RelationshipType(raw string) (relType string, mapped bool, ok bool) {
	canon := canonicalRelationship(raw)
	if s.relationships[canon] {
		return canon, false, true
	}
	if s.strict {
		return "", false, false
	}
	return FallbackRelationship, true, true
}

// HasLabel reports whether label is exactly one of the declared labels.
func (s *Schema) HasLabel(label string) bool {
	l, ok := s.entityLookup[fold(label)]
	return ok && l == label
}

// HasRelationship reports whether relType is exactly one of the declared types.
func (s *Schema) HasRelationship(relType string) bool {
	return s.relationships[relType]
}

func fold(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

func canonicalRelationship(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return strings.ReplaceAll(s, "-", "_")
}
