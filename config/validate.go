package config

import (
	"fmt"

	"github.com/poiesic/medrag/schema"
)

// Validate reports the first unusable setting. It is called at startup so a
// missing capability fails before any document is touched.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBadger:
		if c.Store.Path == "" && !c.Store.InMemory {
			return fmt.Errorf("%w: store.path is required for the badger backend", ErrInvalidConfig)
		}
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("%w: neo4j.uri is required for the neo4j backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if err := c.AIProviderConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunking.size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap must be in [0, size)", ErrInvalidConfig)
	}

	if c.Ingestion.EmbedTimeout <= 0 || c.Ingestion.ExtractTimeout <= 0 {
		return fmt.Errorf("%w: ingestion timeouts must be positive", ErrInvalidConfig)
	}
	if c.Ingestion.ExtractionRate < 0 {
		return fmt.Errorf("%w: ingestion.extraction_rate cannot be negative", ErrInvalidConfig)
	}
	if c.Ingestion.Workers < 0 {
		return fmt.Errorf("%w: ingestion.workers cannot be negative", ErrInvalidConfig)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.EmbedTimeout <= 0 || c.Retrieval.ChannelTimeout <= 0 {
		return fmt.Errorf("%w: retrieval timeouts must be positive", ErrInvalidConfig)
	}

	if _, err := schema.ByName(c.Schema.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// SchemaPreset returns the schema named by the schema section.
func (c *Config) SchemaPreset() (*schema.Schema, error) {
	return schema.ByName(c.Schema.Name)
}
