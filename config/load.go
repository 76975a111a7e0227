package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDRAG"

// DefaultFileName is the config file searched for when no path is given.
const DefaultFileName = "medrag.yaml"

// LoadEnv loads variables from .env files into the process environment.
// Existing variables win. Missing files are ignored; with no arguments
// ./.env is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration. An explicit path must exist. With an empty path
// ./medrag.yaml and ~/.config/medrag/medrag.yaml are tried and defaults are
// used when neither exists. MEDRAG_* variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "medrag"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.in_memory", d.Store.InMemory)

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.user", d.Neo4j.User)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)

	v.SetDefault("ai.embedding_host", d.AI.EmbeddingHost)
	v.SetDefault("ai.embedding_model", d.AI.EmbeddingModel)
	v.SetDefault("ai.embedding_token", d.AI.EmbeddingToken)
	v.SetDefault("ai.embedding_dimension", d.AI.EmbeddingDimension)
	v.SetDefault("ai.temperature", d.AI.Temperature)
	v.SetDefault("ai.max_extraction_input", d.AI.MaxExtractionInput)
	completers := make([]map[string]any, len(d.AI.Completers))
	for i, cc := range d.AI.Completers {
		completers[i] = map[string]any{"provider": cc.Provider, "host": cc.Host, "model": cc.Model, "token": cc.Token}
	}
	v.SetDefault("ai.completers", completers)

	v.SetDefault("chunking.size", d.Chunking.Size)
	v.SetDefault("chunking.overlap", d.Chunking.Overlap)

	v.SetDefault("ingestion.extract_entities", d.Ingestion.ExtractEntities)
	v.SetDefault("ingestion.extraction_budget", d.Ingestion.ExtractionBudget)
	v.SetDefault("ingestion.embed_timeout", d.Ingestion.EmbedTimeout)
	v.SetDefault("ingestion.extract_timeout", d.Ingestion.ExtractTimeout)
	v.SetDefault("ingestion.extraction_rate", d.Ingestion.ExtractionRate)
	v.SetDefault("ingestion.workers", d.Ingestion.Workers)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.include_entities", d.Retrieval.IncludeEntities)
	v.SetDefault("retrieval.include_graph_context", d.Retrieval.IncludeGraphContext)
	v.SetDefault("retrieval.embed_timeout", d.Retrieval.EmbedTimeout)
	v.SetDefault("retrieval.channel_timeout", d.Retrieval.ChannelTimeout)

	v.SetDefault("schema.name", d.Schema.Name)
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Dump writes cfg as YAML with secrets masked.
func Dump(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}
