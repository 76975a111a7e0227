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


package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Completion provider kinds.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// CompleterConfig describes one language model in the completion fallback chain.
type CompleterConfig struct {
	// Provider selects the client: "openai" (any OpenAI-compatible server),
	// "ollama" or "anthropic".
	Provider string

	// Host is the base URL of the service. Optional for anthropic.
	Host string

	// Model is the model identifier.
	// Example: "qwen2.5:7b", "gpt-4o-mini", "claude-3-5-haiku-latest"
	Model string

	// Token is the API key. Local OpenAI-compatible servers accept any value.
	Token string
}

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingToken is the API key for the embedding service.
	EmbeddingToken string

	// EmbeddingDimension is the expected vector length.
	// Zero means the dimension is probed from the embedder on first use.
	EmbeddingDimension int

	// Completers are tried in order until one succeeds.
	Completers []CompleterConfig

	// Temperature is the sampling temperature used for extraction.
	// Default: 0.1
	Temperature float64

	// MaxExtractionInput caps the characters of a chunk sent for extraction.
	// Default: 4000
	MaxExtractionInput int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingToken sets the embedding API key.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithEmbeddingDimension sets the expected embedding dimension.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithCompleters replaces the completion fallback chain.
func WithCompleters(completers ...CompleterConfig) ConfigOption {
	return func(c *Config) {
		c.Completers = append([]CompleterConfig(nil), completers...)
	}
}

// WithHost sets the embedding host and the host of every OpenAI-compatible
// completer to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		for i := range c.Completers {
			if c.Completers[i].Provider == ProviderOpenAI {
				c.Completers[i].Host = host
			}
		}
	}
}

// WithTemperature sets the extraction sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxExtractionInput sets the character cap for extraction input.
func WithMaxExtractionInput(n int) ConfigOption {
	return func(c *Config) {
		c.MaxExtractionInput = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, embedding and completion use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:  defaultHost,
		EmbeddingModel: "nomic-embed-text",
		Completers: []CompleterConfig{
			{Provider: ProviderOpenAI, Host: defaultHost, Model: "qwen2.5:7b"},
		},
		Temperature:        0.1,
		MaxExtractionInput: 4000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to OpenAI-compatible hosts if missing and
// lower-cases provider names.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	for i := range c.Completers {
		cc := &c.Completers[i]
		cc.Provider = strings.ToLower(strings.TrimSpace(cc.Provider))
		if cc.Provider == ProviderOpenAI {
			cc.Host = withV1(cc.Host)
		}
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimension < 0 {
		return errors.New("ai config: EmbeddingDimension cannot be negative")
	}
	if len(c.Completers) == 0 {
		return errors.New("ai config: at least one completer is required")
	}
	for i, cc := range c.Completers {
		if err := cc.validate(); err != nil {
			return fmt.Errorf("ai config: completer %d: %w", i, err)
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxExtractionInput <= 0 {
		return errors.New("ai config: MaxExtractionInput must be positive")
	}
	return nil
}

func (cc CompleterConfig) validate() error {
	switch cc.Provider {
	case ProviderOpenAI, ProviderOllama:
		if cc.Host == "" {
			return errors.New("Host is required")
		}
	case ProviderAnthropic:
		if cc.Token == "" {
			return errors.New("Token is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", cc.Provider)
	}
	if cc.Model == "" {
		return errors.New("Model is required")
	}
	return nil
}
