package medrag

import "errors"

var (
	// ErrStoreRequired is returned when a graph store is not provided.
	ErrStoreRequired = errors.New("graph store required")

	// ErrProviderRequired is returned when an AI provider is not provided.
	ErrProviderRequired = errors.New("AI provider required")

	// ErrCompleterRequired is returned by Answer when the provider has no completer.
	ErrCompleterRequired = errors.New("completer required")

	// ErrEmptySource is returned when a Source has neither a path nor text.
	ErrEmptySource = errors.New("source has no path or text")
)
