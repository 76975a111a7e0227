package schema

import "errors"

var (
	// ErrInvalidIdentifier is returned when a label or relationship type is not a safe identifier.
	ErrInvalidIdentifier = errors.New("invalid schema identifier")

	// ErrUnknownSchema is returned by ByName for an unrecognized preset.
	ErrUnknownSchema = errors.New("unknown schema")
)
