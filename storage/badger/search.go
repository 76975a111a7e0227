package badger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/storage"
	"github.com/poiesic/medrag/text"
)

// BM25 parameters for keyword search.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// allTermsBoost multiplies the score of a chunk containing every query term.
	allTermsBoost = 1.5
)

// VectorSearch ranks chunks by cosine similarity to vector.
// Scores are mapped to [0, 1] as (1 + cosine) / 2, the range Neo4j's vector index reports.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, k int) ([]core.ChunkHit, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: k=%d, vector length %d", storage.ErrInvalidQuery, k, len(vector))
	}
	if dim := s.Dimension(); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", storage.ErrDimensionMismatch, len(vector), dim)
	}

	var hits []core.ChunkHit
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(chunkPrefix), false, func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			// Skip chunks without embeddings
			if len(chunk.Vector) != len(vector) {
				return nil
			}
			hits = append(hits, core.ChunkHit{
				Chunk: chunk,
				Score: (1 + cosine(vector, chunk.Vector)) / 2,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return topHits(hits, k), nil
}

// KeywordSearch ranks chunks with BM25 over their tokenized text.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) ([]core.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", storage.ErrInvalidQuery, k)
	}
	terms := uniqueTerms(text.Tokenize(query))
	if len(terms) == 0 {
		return nil, nil
	}

	type candidate struct {
		chunk  *core.Chunk
		tf     map[string]int
		length int
	}
	var (
		candidates []candidate
		docFreq    = make(map[string]int, len(terms))
		totalLen   int
		total      int
	)

	err := s.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(chunkPrefix), false, func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			tokens := text.Tokenize(chunk.Text)
			total++
			totalLen += len(tokens)

			var tf map[string]int
			for _, tok := range tokens {
				if slices.Contains(terms, tok) {
					if tf == nil {
						tf = make(map[string]int)
					}
					tf[tok]++
				}
			}
			if tf == nil {
				return nil
			}
			for term := range tf {
				docFreq[term]++
			}
			candidates = append(candidates, candidate{chunk: chunk, tf: tf, length: len(tokens)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	avgLen := float64(totalLen) / float64(total)
	hits := make([]core.ChunkHit, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		for term, freq := range c.tf {
			idf := math.Log(1 + (float64(total)-float64(docFreq[term])+0.5)/(float64(docFreq[term])+0.5))
			f := float64(freq)
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(c.length)/avgLen))
		}
		if text.ContainsAll(c.chunk.Text, query) {
			score *= allTermsBoost
		}
		hits = append(hits, core.ChunkHit{Chunk: c.chunk, Score: float32(score)})
	}
	return topHits(hits, k), nil
}

// EntitySearch matches query words against entity names and descriptions.
// Name matches weigh twice as much as description matches, and an entity
// whose whole name appears in the query gets a bonus.
func (s *Store) EntitySearch(ctx context.Context, query string, k int) ([]core.EntityHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", storage.ErrInvalidQuery, k)
	}
	terms := uniqueTerms(text.Tokenize(query))
	if len(terms) == 0 {
		return nil, nil
	}
	phrase := " " + strings.Join(text.Words(query), " ") + " "

	var hits []core.EntityHit
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(entityPrefix), false, func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entity, err := storage.UnmarshalEntity(val)
			if err != nil {
				return err
			}
			nameHits := countMatches(terms, text.Tokenize(entity.Name))
			descHits := countMatches(terms, text.Tokenize(entity.Description))
			if nameHits == 0 && descHits == 0 {
				return nil
			}
			score := float32(2*nameHits+descHits) / float32(len(terms))
			if strings.Contains(phrase, " "+entity.Name+" ") {
				score++
			}
			hits = append(hits, core.EntityHit{Entity: entity, Score: score})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b core.EntityHit) int {
		return compareScores(a.Score, b.Score)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// topHits sorts by score descending, keeping key order among equal scores, and truncates to k.
func topHits(hits []core.ChunkHit, k int) []core.ChunkHit {
	slices.SortStableFunc(hits, func(a, b core.ChunkHit) int {
		return compareScores(a.Score, b.Score)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func compareScores(a, b float32) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			terms = append(terms, tok)
		}
	}
	return terms
}

func countMatches(terms, tokens []string) int {
	n := 0
	for _, term := range terms {
		if slices.Contains(tokens, term) {
			n++
		}
	}
	return n
}
