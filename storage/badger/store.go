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


package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
)

// Relationship types the store maintains itself.
const (
	relFromDocument = "FROM_DOCUMENT"
	relMentionedIn  = "MENTIONED_IN"

	labelDocument = "Document"
	labelChunk    = "Chunk"
)

// Store implements storage.GraphStore on an embedded BadgerDB.
// Graph traversals scan the relationship keyspace, which is fine for the
// corpus sizes an embedded store is meant for.
type Store struct {
	backend   *Backend
	schema    *schema.Schema
	dimension atomic.Int64
	logger    *slog.Logger
}

var _ storage.GraphStore = (*Store)(nil)

// NewStore opens (or creates) a store at path that accepts the labels of s.
//
// Returns storage.GraphStore interface (not *Store) to enforce abstraction.
func NewStore(path string, s *schema.Schema) (storage.GraphStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	store, err := newStore(backend, s)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

func newStore(backend *Backend, s *schema.Schema) (*Store, error) {
	if s == nil {
		s = schema.Medical
	}
	store := &Store{
		backend: backend,
		schema:  s,
		logger:  slog.Default().With("component", "badger-store"),
	}

	err := backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dimensionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return storage.ErrTruncatedData
			}
			store.dimension.Store(int64(binary.BigEndian.Uint64(val)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading vector dimension: %w", err)
	}
	return store, nil
}

// Backend exposes the underlying BadgerDB wrapper.
func (s *Store) Backend() *Backend {
	return s.backend
}

// EnsureSchema records the vector dimension. A store created for one
// dimension keeps it; asking for another is an error.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension)
	}
	current := int(s.dimension.Load())
	if current == dimension {
		return nil
	}
	if current != 0 {
		return fmt.Errorf("%w: store has %d, requested %d", storage.ErrDimensionMismatch, current, dimension)
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(dimension))
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set([]byte(dimensionKey), buf)
	})
	if err != nil {
		return err
	}
	s.dimension.Store(int64(dimension))
	s.logger.Info("schema ensured", "schema", s.schema.Name(), "dimension", dimension)
	return nil
}

// Dimension returns the vector dimension set by EnsureSchema, or 0.
func (s *Store) Dimension() int {
	return int(s.dimension.Load())
}

// Document returns a stored document or storage.ErrNotFound.
func (s *Store) Document(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// Entity returns a stored entity or storage.ErrNotFound.
func (s *Store) Entity(ctx context.Context, key core.EntityKey) (*core.Entity, error) {
	key.Name = core.NormalizeName(key.Name)
	var entity *core.Entity
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		entity, err = readEntity(tx, makeEntityKey(key))
		if err != nil {
			return err
		}
		if entity == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return entity, err
}

// Chunks returns up to limit chunks with ids greater than after, in id order.
func (s *Store) Chunks(ctx context.Context, after string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit)
	}
	var chunks []*core.Chunk
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(chunkPrefix)
		if after != "" {
			start = makeChunkKey(after)
		}
		for iter.Seek(start); iter.Valid() && len(chunks) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			if after != "" && string(item.Key()) == string(start) {
				continue
			}
			err := item.Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				chunks = append(chunks, chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return chunks, err
}

// DeleteDocument removes a document, its chunks and their mention edges.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	var removed int
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		removed = 0
		docKey := makeDocumentKey(id)
		if _, err := tx.Get(docKey); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		var indexKeys [][]byte
		err := scanPrefix(tx, makeDocumentChunkPrefix(id), true, func(key, _ []byte) error {
			indexKeys = append(indexKeys, key)
			return nil
		})
		if err != nil {
			return err
		}

		for _, indexKey := range indexKeys {
			chunkID := splitKey(indexKey, documentChunkPrefix)[1]
			if err := s.deleteMentions(tx, chunkID); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkKey(chunkID)); err != nil {
				return err
			}
			if err := tx.Delete(indexKey); err != nil {
				return err
			}
			removed++
		}
		return tx.Delete(docKey)
	})
	if err == nil {
		s.logger.Info("document deleted", "document", id, "chunks", removed)
	}
	return err
}

// PruneChunks removes the chunks of a document whose index is keep or higher,
// together with their mention edges.
func (s *Store) PruneChunks(ctx context.Context, documentID string, keep int) (int, error) {
	var removed int
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		removed = 0
		var indexKeys [][]byte
		err := scanPrefix(tx, makeDocumentChunkPrefix(documentID), true, func(key, _ []byte) error {
			indexKeys = append(indexKeys, key)
			return nil
		})
		if err != nil {
			return err
		}

		for _, indexKey := range indexKeys {
			chunkID := splitKey(indexKey, documentChunkPrefix)[1]
			chunk, err := readChunk(tx, makeChunkKey(chunkID))
			if err != nil {
				return err
			}
			if chunk != nil && chunk.Index < keep {
				continue
			}
			if err := s.deleteMentions(tx, chunkID); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkKey(chunkID)); err != nil {
				return err
			}
			if err := tx.Delete(indexKey); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug("stale chunks pruned", "document", documentID, "chunks", removed)
	}
	return removed, nil
}

func (s *Store) deleteMentions(tx *badger.Txn, chunkID string) error {
	var keys [][]byte
	err := scanPrefix(tx, makeChunkMentionPrefix(chunkID), true, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		parts := splitKey(key, chunkMentionPrefix)
		entity := core.EntityKey{Type: parts[1], Name: parts[2]}
		if err := tx.Delete(makeMentionKey(entity, chunkID)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Stats counts nodes per label and edges per relationship type.
func (s *Store) Stats(ctx context.Context) (*core.GraphStats, error) {
	stats := &core.GraphStats{
		Labels:        make(map[string]int),
		Relationships: make(map[string]int),
	}
	err := s.backend.View(func(tx *badger.Txn) error {
		counts := []struct {
			prefix string
			count  func(key []byte)
		}{
			{documentPrefix, func([]byte) { stats.Documents++ }},
			{chunkPrefix, func([]byte) { stats.Chunks++ }},
			{documentChunkPrefix, func([]byte) { stats.Relationships[relFromDocument]++ }},
			{mentionPrefix, func([]byte) { stats.Relationships[relMentionedIn]++ }},
			{entityPrefix, func(key []byte) { stats.Labels[splitKey(key, entityPrefix)[0]]++ }},
			{relationshipPrefix, func(key []byte) { stats.Relationships[splitKey(key, relationshipPrefix)[2]]++ }},
		}
		for _, c := range counts {
			err := scanPrefix(tx, []byte(c.prefix), true, func(key, _ []byte) error {
				c.count(key)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stats.Documents > 0 {
		stats.Labels[labelDocument] = stats.Documents
	}
	if stats.Chunks > 0 {
		stats.Labels[labelChunk] = stats.Chunks
	}
	return stats, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if s.backend.IsClosed() {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, storage.ErrStorageClosed)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close(ctx context.Context) error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	var doc *core.Document
	err := readValue(tx, key, func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := readValue(tx, key, func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

func readEntity(tx *badger.Txn, key []byte) (*core.Entity, error) {
	var entity *core.Entity
	err := readValue(tx, key, func(val []byte) error {
		var err error
		entity, err = storage.UnmarshalEntity(val)
		return err
	})
	return entity, err
}

// readValue calls fn with the value stored at key. A missing key is not an error
// and fn is not called.
func readValue(tx *badger.Txn, key []byte, fn func(val []byte) error) error {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	return item.Value(fn)
}

func exists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}
