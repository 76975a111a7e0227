// Package chunker splits document text into overlapping windows that prefer
// to end on sentence, paragraph, line or word boundaries.
//
//	segments, err := chunker.Split(text, 500, 100)
//
// or, with a reusable configuration:
//
//	c, err := chunker.New(chunker.WithSize(800), chunker.WithOverlap(200))
//	segments := c.Split(text)
package chunker
