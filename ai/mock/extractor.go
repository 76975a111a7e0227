package mock

import (
	"context"
	"sync"

	"github.com/poiesic/medrag/ai"
)

// MockExtractor is a test double for ai.Extractor.
// It allows custom behavior injection via function fields.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, Extract returns an empty extraction.
	ExtractFunc func(ctx context.Context, text string) (*ai.Extraction, error)

	mu        sync.Mutex
	callCount int
	texts     []string
}

// NewMockExtractor creates a mock extractor that finds nothing.
// Note: Returns concrete type to allow test assertions via GetMockExtractor().
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// Extract records the call and delegates to ExtractFunc.
func (m *MockExtractor) Extract(ctx context.Context, text string) (*ai.Extraction, error) {
	m.mu.Lock()
	m.callCount++
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}
	return &ai.Extraction{}, nil
}

// CallCount returns the number of times Extract was called.
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Texts returns the inputs Extract was called with, in call order.
func (m *MockExtractor) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears the call count and custom functions.
func (m *MockExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.ExtractFunc = nil
}
