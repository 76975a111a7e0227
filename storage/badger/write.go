package badger

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/storage"
)

// UpsertDocument creates the document or merges its metadata into the stored one.
func (s *Store) UpsertDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		old, err := readDocument(tx, key)
		if err != nil {
			return err
		}

		merged := *doc
		merged.Metadata = mergeProperties(nil, doc.Metadata)
		if old != nil {
			merged.Metadata = mergeProperties(old.Metadata, doc.Metadata)
		}
		if merged.IngestedAt.IsZero() {
			merged.IngestedAt = time.Now().UTC()
		}
		return tx.Set(key, storage.MarshalDocument(&merged))
	})
}

// UpsertChunk stores a chunk and links it to its document.
// A nil vector keeps the stored vector while the text is unchanged. New text
// drops the old vector and the chunk's mentions.
func (s *Store) UpsertChunk(ctx context.Context, chunk *core.Chunk) error {
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}
	if dim := s.Dimension(); dim > 0 && chunk.Vector != nil && len(chunk.Vector) != dim {
		return fmt.Errorf("%w: chunk %s has %d, index has %d", storage.ErrDimensionMismatch, chunk.ID, len(chunk.Vector), dim)
	}

	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeChunkKey(chunk.ID)
		old, err := readChunk(tx, key)
		if err != nil {
			return err
		}
		stored := *chunk
		if old != nil && old.Text == chunk.Text {
			if stored.Vector == nil {
				stored.Vector = old.Vector
			}
		} else if old != nil {
			// Mentions were extracted from the old text.
			if err := s.deleteMentions(tx, chunk.ID); err != nil {
				return err
			}
		}
		if err := tx.Set(key, storage.MarshalChunk(&stored)); err != nil {
			return err
		}
		return tx.Set(makeDocumentChunkKey(chunk.DocumentID, chunk.ID), nil)
	})
}

// UpsertEntity merges an entity by (type, name).
func (s *Store) UpsertEntity(ctx context.Context, entity *core.Entity) error {
	if err := core.ValidateEntity(entity); err != nil {
		return err
	}
	if !s.schema.HasLabel(entity.Type) {
		return fmt.Errorf("%w: entity type %q", storage.ErrUnknownLabel, entity.Type)
	}
	incoming := *entity
	incoming.Name = core.NormalizeName(entity.Name)

	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeEntityKey(incoming.Key())
		old, err := readEntity(tx, key)
		if err != nil {
			return err
		}

		merged := incoming
		merged.Properties = mergeProperties(nil, incoming.Properties)
		if old != nil {
			merged.Properties = mergeProperties(old.Properties, incoming.Properties)
			if merged.Description == "" {
				merged.Description = old.Description
			}
		}
		return tx.Set(key, storage.MarshalEntity(&merged))
	})
}

// LinkMention records MENTIONED_IN from an entity to a chunk.
// It does nothing when either side does not exist.
func (s *Store) LinkMention(ctx context.Context, entity core.EntityKey, chunkID string) error {
	entity.Name = core.NormalizeName(entity.Name)
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, key := range [][]byte{makeEntityKey(entity), makeChunkKey(chunkID)} {
			ok, err := exists(tx, key)
			if err != nil || !ok {
				return err
			}
		}
		if err := tx.Set(makeMentionKey(entity, chunkID), nil); err != nil {
			return err
		}
		return tx.Set(makeChunkMentionKey(chunkID, entity), nil)
	})
}

// UpsertRelationship merges a directed edge. It reports false when an endpoint is missing.
func (s *Store) UpsertRelationship(ctx context.Context, rel *core.Relationship) (bool, error) {
	if err := core.ValidateRelationship(rel); err != nil {
		return false, err
	}
	if !s.schema.HasRelationship(rel.Type) {
		return false, fmt.Errorf("%w: relationship type %q", storage.ErrUnknownLabel, rel.Type)
	}
	incoming := *rel
	incoming.Source.Name = core.NormalizeName(rel.Source.Name)
	incoming.Target.Name = core.NormalizeName(rel.Target.Name)

	var created bool
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		created = false
		for _, endpoint := range []core.EntityKey{incoming.Source, incoming.Target} {
			ok, err := exists(tx, makeEntityKey(endpoint))
			if err != nil || !ok {
				return err
			}
		}

		key := makeRelationshipKey(&incoming)
		var old *core.Relationship
		err := readValue(tx, key, func(val []byte) error {
			var err error
			old, err = storage.UnmarshalRelationship(val)
			return err
		})
		if err != nil {
			return err
		}

		merged := incoming
		merged.Properties = mergeProperties(nil, incoming.Properties)
		if old != nil {
			merged.Properties = mergeProperties(old.Properties, incoming.Properties)
		}
		if err := tx.Set(key, storage.MarshalRelationship(&merged)); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// mergeProperties returns a copy of base with overlay applied; overlay wins per key.
func mergeProperties(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	maps.Copy(merged, base)
	maps.Copy(merged, overlay)
	return merged
}
