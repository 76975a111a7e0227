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


package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/medrag/core"
)

// Records are encoded field by field in declaration order using MUS
// primitives. Map keys are written sorted so equal records encode equally.

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	size := ord.String.Size(doc.ID) +
		ord.String.Size(doc.Name) +
		varint.Int64.Size(int64(doc.Size)) +
		sizeMap(doc.Metadata) +
		varint.Int64.Size(doc.IngestedAt.UnixMicro())

	buf := make([]byte, size)
	n := ord.String.Marshal(doc.ID, buf)
	n += ord.String.Marshal(doc.Name, buf[n:])
	n += varint.Int64.Marshal(int64(doc.Size), buf[n:])
	n += marshalMap(doc.Metadata, buf[n:])
	varint.Int64.Marshal(doc.IngestedAt.UnixMicro(), buf[n:])
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	d := decoder{buf: data}
	doc := &core.Document{
		ID:   d.string(),
		Name: d.string(),
		Size: int(d.int64()),
	}
	doc.Metadata = d.stringMap()
	doc.IngestedAt = time.UnixMicro(d.int64()).UTC()
	if d.err != nil {
		return nil, d.err
	}
	return doc, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	size := ord.String.Size(chunk.ID) +
		ord.String.Size(chunk.DocumentID) +
		varint.Int64.Size(int64(chunk.Index)) +
		ord.String.Size(chunk.Text) +
		sizeVector(chunk.Vector) +
		sizeMap(chunk.Metadata)

	buf := make([]byte, size)
	n := ord.String.Marshal(chunk.ID, buf)
	n += ord.String.Marshal(chunk.DocumentID, buf[n:])
	n += varint.Int64.Marshal(int64(chunk.Index), buf[n:])
	n += ord.String.Marshal(chunk.Text, buf[n:])
	n += marshalVector(chunk.Vector, buf[n:])
	marshalMap(chunk.Metadata, buf[n:])
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	d := decoder{buf: data}
	chunk := &core.Chunk{
		ID:         d.string(),
		DocumentID: d.string(),
		Index:      int(d.int64()),
		Text:       d.string(),
	}
	chunk.Vector = d.vector()
	chunk.Metadata = d.stringMap()
	if d.err != nil {
		return nil, d.err
	}
	return chunk, nil
}

// MarshalEntity serializes an Entity to bytes.
func MarshalEntity(entity *core.Entity) []byte {
	size := ord.String.Size(entity.Type) +
		ord.String.Size(entity.Name) +
		ord.String.Size(entity.Description) +
		sizeMap(entity.Properties)

	buf := make([]byte, size)
	n := ord.String.Marshal(entity.Type, buf)
	n += ord.String.Marshal(entity.Name, buf[n:])
	n += ord.String.Marshal(entity.Description, buf[n:])
	marshalMap(entity.Properties, buf[n:])
	return buf
}

// UnmarshalEntity deserializes an Entity from bytes.
func UnmarshalEntity(data []byte) (*core.Entity, error) {
	d := decoder{buf: data}
	entity := &core.Entity{
		Type:        d.string(),
		Name:        d.string(),
		Description: d.string(),
	}
	entity.Properties = d.stringMap()
	if d.err != nil {
		return nil, d.err
	}
	return entity, nil
}

// MarshalRelationship serializes a Relationship to bytes.
func MarshalRelationship(rel *core.Relationship) []byte {
	size := ord.String.Size(rel.Source.Type) +
		ord.String.Size(rel.Source.Name) +
		ord.String.Size(rel.Type) +
		ord.String.Size(rel.Target.Type) +
		ord.String.Size(rel.Target.Name) +
		sizeMap(rel.Properties)

	buf := make([]byte, size)
	n := ord.String.Marshal(rel.Source.Type, buf)
	n += ord.String.Marshal(rel.Source.Name, buf[n:])
	n += ord.String.Marshal(rel.Type, buf[n:])
	n += ord.String.Marshal(rel.Target.Type, buf[n:])
	n += ord.String.Marshal(rel.Target.Name, buf[n:])
	marshalMap(rel.Properties, buf[n:])
	return buf
}

// UnmarshalRelationship deserializes a Relationship from bytes.
func UnmarshalRelationship(data []byte) (*core.Relationship, error) {
	d := decoder{buf: data}
	rel := &core.Relationship{}
	rel.Source = core.EntityKey{Type: d.string(), Name: d.string()}
	rel.Type = d.string()
	rel.Target = core.EntityKey{Type: d.string(), Name: d.string()}
	rel.Properties = d.stringMap()
	if d.err != nil {
		return nil, d.err
	}
	return rel, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sizeMap(m map[string]string) int {
	size := varint.Uint64.Size(uint64(len(m)))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func marshalMap(m map[string]string, buf []byte) int {
	n := varint.Uint64.Marshal(uint64(len(m)), buf)
	for _, k := range sortedKeys(m) {
		n += ord.String.Marshal(k, buf[n:])
		n += ord.String.Marshal(m[k], buf[n:])
	}
	return n
}

func sizeVector(v []float32) int {
	size := varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += varint.Uint64.Size(uint64(math.Float32bits(f)))
	}
	return size
}

func marshalVector(v []float32, buf []byte) int {
	n := varint.Uint64.Marshal(uint64(len(v)), buf)
	for _, f := range v {
		n += varint.Uint64.Marshal(uint64(math.Float32bits(f)), buf[n:])
	}
	return n
}

// decoder reads MUS primitives in sequence and keeps the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.buf[d.off:])
	if err != nil {
		d.fail(err)
		return ""
	}
	d.off += n
	return v
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.buf[d.off:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.buf[d.off:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.off += n
	return v
}

// length reads a collection length and rejects values the remaining input cannot hold.
func (d *decoder) length() int {
	l := d.uint64()
	if d.err == nil && l > uint64(len(d.buf)-d.off) {
		d.fail(ErrTruncatedData)
		return 0
	}
	return int(l)
}

func (d *decoder) stringMap() map[string]string {
	l := d.length()
	if d.err != nil || l == 0 {
		return nil
	}
	m := make(map[string]string, l)
	for i := 0; i < l && d.err == nil; i++ {
		k := d.string()
		m[k] = d.string()
	}
	return m
}

func (d *decoder) vector() []float32 {
	l := d.length()
	if d.err != nil || l == 0 {
		return nil
	}
	v := make([]float32, l)
	for i := range v {
		v[i] = math.Float32frombits(uint32(d.uint64()))
	}
	return v
}
