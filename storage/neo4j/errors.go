package neo4j

import "errors"

// ErrURIRequired is returned when no bolt URI is configured.
var ErrURIRequired = errors.New("neo4j uri is required")
