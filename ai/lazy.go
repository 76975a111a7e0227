package ai

import (
	"context"
	"sync"
)

// LazyEmbedder defers construction of an Embedder until its first use.
// Construction runs at most once; a construction error is returned by every call.
type LazyEmbedder struct {
	factory  func() (Embedder, error)
	once     sync.Once
	embedder Embedder
	err      error
}

var _ Embedder = (*LazyEmbedder)(nil)

// NewLazyEmbedder wraps factory so it is called on the first embedding request.
func NewLazyEmbedder(factory func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{factory: factory}
}

func (l *LazyEmbedder) get() (Embedder, error) {
	l.once.Do(func() {
		l.embedder, l.err = l.factory()
	})
	return l.embedder, l.err
}

// EmbedText implements Embedder.
func (l *LazyEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedText(ctx, text)
}

// EmbedTexts implements Embedder.
func (l *LazyEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedTexts(ctx, texts)
}

// ProbeDimension embeds a short probe text and returns the vector length.
func ProbeDimension(ctx context.Context, e Embedder) (int, error) {
	vec, err := e.EmbedText(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, ErrEmptyEmbedding
	}
	return len(vec), nil
}
