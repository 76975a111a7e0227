package ai

import "errors"

var (
	// ErrMalformedExtraction indicates a model reply that no decoding strategy could parse.
	ErrMalformedExtraction = errors.New("malformed extraction response")

	// ErrNoCompleters is returned when a fallback chain is built without completers.
	ErrNoCompleters = errors.New("at least one completer is required")

	// ErrAllCompletersFailed is returned when every completer in a fallback chain failed.
	ErrAllCompletersFailed = errors.New("all completers failed")

	// ErrCompleterRequired is returned when an extractor is built without a completer.
	ErrCompleterRequired = errors.New("completer required")

	// ErrEmptyEmbedding is returned when an embedder produced no vector.
	ErrEmptyEmbedding = errors.New("embedder returned an empty vector")
)
