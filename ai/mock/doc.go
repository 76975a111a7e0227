// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Extractor,
// ai.Completer and ai.AIProvider for use in unit tests. The mocks allow tests
// to run without external AI service dependencies and enable controlled,
// deterministic behavior. All mocks are safe for concurrent use.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	        return []float32{0.1, 0.2, 0.3}, nil
//	    })
//
//	extractor := mock.NewMockExtractor()
//	extractor.ExtractFunc = func(ctx context.Context, text string) (*ai.Extraction, error) {
//	    return &ai.Extraction{Entities: []ai.ExtractedEntity{{ID: "e1", Type: "Disease", Name: "Malaria"}}}, nil
//	}
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockExtractor: Returns an empty extraction
//   - MockCompleter: Returns its configured Reply
package mock
