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


// Package storage defines the graph store contract used by medrag.
//
// The GraphStore interface is deliberately narrow: MERGE upserts for
// documents, chunks, entities, mentions and relationships; vector,
// full-text and entity search; and a handful of typed medical traversals.
// Two implementations exist:
//
//   - storage/neo4j talks to a Neo4j server over bolt
//   - storage/badger is an embedded store used for tests and single-user setups
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.GraphStore interface:
//
//	store, err := neo4j.NewStore(ctx, neo4j.Config{URI: uri}, schema.Medical)
//	store, err := badger.NewStore(path, schema.Medical)
//
// # Errors
//
// A store that cannot be reached returns an error wrapping ErrUnavailable.
// Callers test for it with errors.Is to tell "store down" apart from
// "nothing matched".
//
// # Thread Safety
//
// All implementations must be safe for concurrent use by multiple goroutines.
package storage
