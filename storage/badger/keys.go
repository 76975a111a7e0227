package badger

import (
	"bytes"

	"github.com/poiesic/medrag/core"
)

// Key prefixes for different data types
const (
	documentPrefix      = "doc:"
	chunkPrefix         = "chk:"
	documentChunkPrefix = "dchk:"
	entityPrefix        = "ent:"
	mentionPrefix       = "men:"
	chunkMentionPrefix  = "cmen:"
	relationshipPrefix  = "rel:"
	dimensionKey        = "meta:dimension"
)

// sep joins key parts. Labels never contain it and name normalization replaces it with a space.
const sep = 0x00

func joinKey(prefix string, parts ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString(prefix)
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(sep)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

func splitKey(key []byte, prefix string) []string {
	parts := bytes.Split(key[len(prefix):], []byte{sep})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id string) []byte {
	return joinKey(documentPrefix, id)
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id string) []byte {
	return joinKey(chunkPrefix, id)
}

// makeDocumentChunkKey indexes a chunk under its document.
// Format: prefix:docID 0x00 chunkID
func makeDocumentChunkKey(docID, chunkID string) []byte {
	return joinKey(documentChunkPrefix, docID, chunkID)
}

func makeDocumentChunkPrefix(docID string) []byte {
	return append(joinKey(documentChunkPrefix, docID), sep)
}

// makeEntityKey generates a key for an entity by (type, name).
func makeEntityKey(key core.EntityKey) []byte {
	return joinKey(entityPrefix, key.Type, key.Name)
}

// makeMentionKey records MENTIONED_IN from the entity side.
func makeMentionKey(key core.EntityKey, chunkID string) []byte {
	return joinKey(mentionPrefix, key.Type, key.Name, chunkID)
}

// makeChunkMentionKey records MENTIONED_IN from the chunk side, used to purge documents.
func makeChunkMentionKey(chunkID string, key core.EntityKey) []byte {
	return joinKey(chunkMentionPrefix, chunkID, key.Type, key.Name)
}

func makeChunkMentionPrefix(chunkID string) []byte {
	return append(joinKey(chunkMentionPrefix, chunkID), sep)
}

// makeRelationshipKey generates a key for an edge by (source, type, target).
func makeRelationshipKey(rel *core.Relationship) []byte {
	return joinKey(relationshipPrefix, rel.Source.Type, rel.Source.Name, rel.Type, rel.Target.Type, rel.Target.Name)
}
