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


package chunker

import "strings"

const (
	// DefaultSize is the default window size in characters.
	DefaultSize = 500

	// DefaultOverlap is the default number of characters shared by consecutive chunks.
	DefaultOverlap = 100
)

// separators are tried in priority order when looking for a natural cut point.
var separators = [][]rune{
	[]rune(". "),
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// Chunker splits text into overlapping windows.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return ErrInvalidSize
		}
		c.size = size
		return nil
	}
}

// WithOverlap sets the number of characters consecutive chunks share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return ErrInvalidOverlap
		}
		c.overlap = overlap
		return nil
	}
}

// New creates a Chunker with DefaultSize and DefaultOverlap unless overridden.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap >= c.size {
		return nil, ErrInvalidOverlap
	}
	return c, nil
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text using the chunker's configuration.
func (c *Chunker) Split(text string) []string {
	return split([]rune(text), c.size, c.overlap)
}

// Split cuts text into segments of at most size characters where consecutive
// segments share overlap characters.
//
// When a window does not reach the end of the text, the cut is moved back to
// just after the last separator found in the second half of the window. The
// separators ". ", "\n\n", "\n" and " " are tried in that order and the first
// one present wins. Segments are returned untrimmed; whitespace-only segments
// are skipped. The same input always yields the same output.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	return split([]rune(text), size, overlap), nil
}

func split(runes []rune, size, overlap int) []string {
	n := len(runes)
	segments := make([]string, 0, n/max(size-overlap, 1)+1)

	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else if cut := findBreak(runes, start+size/2, end); cut > 0 {
			end = cut
		}

		segment := string(runes[start:end])
		if strings.TrimSpace(segment) != "" {
			segments = append(segments, segment)
		}

		if end >= n {
			break
		}

		// Always make progress, even if the cut landed inside the overlap.
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return segments
}

// findBreak returns the position just after the last occurrence of the
// highest-priority separator lying entirely within [lo, hi), or -1.
func findBreak(runes []rune, lo, hi int) int {
	for _, sep := range separators {
		for i := hi - len(sep); i >= lo; i-- {
			if hasSeparatorAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return -1
}

func hasSeparatorAt(runes []rune, i int, sep []rune) bool {
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
