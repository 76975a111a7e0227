// Package reembed recomputes the vectors of every stored chunk, typically
// after switching to a new or updated embedding model.
//
// Chunks are read through the store's id-ordered cursor in batches, embedded
// with retry and exponential backoff, normalized to unit length and written
// back. Progress is reported to an io.Writer as the batches complete.
package reembed
