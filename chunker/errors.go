package chunker

import "errors"

var (
	// ErrInvalidSize is returned when the window size is not positive.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap is returned when the overlap is negative or not smaller than the size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than size")
)
