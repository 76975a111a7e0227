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


package config

import (
	"time"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/chunker"
	"github.com/poiesic/medrag/ingestion"
	"github.com/poiesic/medrag/search"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendNeo4j  = "neo4j"
)

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Ingestion IngestionConfig `mapstructure:"ingestion" yaml:"ingestion"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Schema    SchemaConfig    `mapstructure:"schema" yaml:"schema"`
}

// StoreConfig selects the graph store.
type StoreConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Path     string `mapstructure:"path" yaml:"path"`           // badger data directory
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory"` // badger only
}

// Neo4jConfig holds bolt connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// AIConfig configures embedding and the completion fallback chain.
type AIConfig struct {
	EmbeddingHost      string            `mapstructure:"embedding_host" yaml:"embedding_host"`
	EmbeddingModel     string            `mapstructure:"embedding_model" yaml:"embedding_model"`
	EmbeddingToken     string            `mapstructure:"embedding_token" yaml:"embedding_token"`
	EmbeddingDimension int               `mapstructure:"embedding_dimension" yaml:"embedding_dimension"`
	Temperature        float64           `mapstructure:"temperature" yaml:"temperature"`
	MaxExtractionInput int               `mapstructure:"max_extraction_input" yaml:"max_extraction_input"`
	Completers         []CompleterConfig `mapstructure:"completers" yaml:"completers"`
}

// CompleterConfig is one entry of the completion fallback chain.
type CompleterConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Host     string `mapstructure:"host" yaml:"host"`
	Model    string `mapstructure:"model" yaml:"model"`
	Token    string `mapstructure:"token" yaml:"token"`
}

// ChunkingConfig sizes the sliding window, in characters.
type ChunkingConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Overlap int `mapstructure:"overlap" yaml:"overlap"`
}

// IngestionConfig controls the ingestion pipeline.
type IngestionConfig struct {
	ExtractEntities  bool          `mapstructure:"extract_entities" yaml:"extract_entities"`
	ExtractionBudget int           `mapstructure:"extraction_budget" yaml:"extraction_budget"` // negative means unlimited
	EmbedTimeout     time.Duration `mapstructure:"embed_timeout" yaml:"embed_timeout"`
	ExtractTimeout   time.Duration `mapstructure:"extract_timeout" yaml:"extract_timeout"`
	ExtractionRate   float64       `mapstructure:"extraction_rate" yaml:"extraction_rate"` // calls per second, 0 is unlimited
	Workers          int           `mapstructure:"workers" yaml:"workers"`                 // 0 picks from the CPU count
}

// RetrievalConfig controls the hybrid retriever.
type RetrievalConfig struct {
	TopK                int           `mapstructure:"top_k" yaml:"top_k"`
	IncludeEntities     bool          `mapstructure:"include_entities" yaml:"include_entities"`
	IncludeGraphContext bool          `mapstructure:"include_graph_context" yaml:"include_graph_context"`
	EmbedTimeout        time.Duration `mapstructure:"embed_timeout" yaml:"embed_timeout"`
	ChannelTimeout      time.Duration `mapstructure:"channel_timeout" yaml:"channel_timeout"`
}

// SchemaConfig names a preset schema.
type SchemaConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// Default returns the built-in configuration: an embedded badger store and a
// local OpenAI-compatible model server.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	completers := make([]CompleterConfig, len(aiDefaults.Completers))
	for i, cc := range aiDefaults.Completers {
		completers[i] = CompleterConfig{Provider: cc.Provider, Host: cc.Host, Model: cc.Model, Token: cc.Token}
	}

	return &Config{
		Store: StoreConfig{
			Backend: BackendBadger,
			Path:    "medrag-data",
		},
		Neo4j: Neo4jConfig{
			URI:  "bolt://localhost:7687",
			User: "neo4j",
		},
		AI: AIConfig{
			EmbeddingHost:      aiDefaults.EmbeddingHost,
			EmbeddingModel:     aiDefaults.EmbeddingModel,
			Temperature:        aiDefaults.Temperature,
			MaxExtractionInput: aiDefaults.MaxExtractionInput,
			Completers:         completers,
		},
		Chunking: ChunkingConfig{
			Size:    chunker.DefaultSize,
			Overlap: chunker.DefaultOverlap,
		},
		Ingestion: IngestionConfig{
			ExtractEntities:  true,
			ExtractionBudget: ingestion.DefaultExtractionBudget,
			EmbedTimeout:     ingestion.DefaultEmbedTimeout,
			ExtractTimeout:   ingestion.DefaultExtractTimeout,
		},
		Retrieval: RetrievalConfig{
			TopK:                search.DefaultTopK,
			IncludeEntities:     true,
			IncludeGraphContext: true,
			EmbedTimeout:        search.DefaultEmbedTimeout,
			ChannelTimeout:      search.DefaultChannelTimeout,
		},
		Schema: SchemaConfig{Name: "medical"},
	}
}

// AIProviderConfig converts the ai section to the functional-option ai.Config.
func (c *Config) AIProviderConfig() *ai.Config {
	completers := make([]ai.CompleterConfig, len(c.AI.Completers))
	for i, cc := range c.AI.Completers {
		completers[i] = ai.CompleterConfig{Provider: cc.Provider, Host: cc.Host, Model: cc.Model, Token: cc.Token}
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithEmbeddingToken(c.AI.EmbeddingToken),
		ai.WithEmbeddingDimension(c.AI.EmbeddingDimension),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxExtractionInput(c.AI.MaxExtractionInput),
		ai.WithCompleters(completers...),
	)
}

// IngestOptions returns the per-document ingestion options.
func (c *Config) IngestOptions() ingestion.Options {
	return ingestion.Options{
		ExtractEntities:  c.Ingestion.ExtractEntities,
		ExtractionBudget: c.Ingestion.ExtractionBudget,
	}
}

// RetrieveOptions returns the per-query retrieval options.
func (c *Config) RetrieveOptions() search.Options {
	return search.Options{
		TopK:                c.Retrieval.TopK,
		IncludeEntities:     c.Retrieval.IncludeEntities,
		IncludeGraphContext: c.Retrieval.IncludeGraphContext,
	}
}

// Redacted returns a copy with passwords and tokens masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Neo4j.Password = mask(c.Neo4j.Password)
	out.AI.EmbeddingToken = mask(c.AI.EmbeddingToken)
	out.AI.Completers = make([]CompleterConfig, len(c.AI.Completers))
	for i, cc := range c.AI.Completers {
		cc.Token = mask(cc.Token)
		out.AI.Completers[i] = cc
	}
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
