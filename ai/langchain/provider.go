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


package langchain

import (
	"log/slog"

	"github.com/poiesic/medrag/ai"
	"github.com/poiesic/medrag/schema"
)

// Provider implements ai.AIProvider using langchaingo clients.
// The embedder is built lazily on first use; completers form a fallback chain
// that also backs the extractor.
type Provider struct {
	config    *ai.Config
	embedder  *ai.LazyEmbedder
	completer *ai.FallbackCompleter
	extractor *ai.CompletionExtractor
	logger    *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates a new AI provider.
// The config is validated and normalized before use. Extraction prompts
// advertise the types of s.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction.
func NewProvider(config *ai.Config, s *schema.Schema) (ai.AIProvider, error) {
	return newProvider(config, s)
}

func newProvider(config *ai.Config, s *schema.Schema) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	completers := make([]ai.Completer, 0, len(config.Completers))
	for _, cc := range config.Completers {
		c, err := newCompleter(cc, config.Temperature)
		if err != nil {
			return nil, err
		}
		completers = append(completers, c)
	}

	chain, err := ai.NewFallbackCompleter(completers...)
	if err != nil {
		return nil, err
	}

	extractor, err := ai.NewCompletionExtractor(chain, s, config.MaxExtractionInput)
	if err != nil {
		return nil, err
	}

	embedder := ai.NewLazyEmbedder(func() (ai.Embedder, error) {
		return newEmbedder(config)
	})

	return &Provider{
		config:    config,
		embedder:  embedder,
		completer: chain,
		extractor: extractor,
		logger:    slog.Default().With("component", "langchain-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Extractor returns the entity extraction service.
func (p *Provider) Extractor() ai.Extractor {
	return p.extractor
}

// Completer returns the completion fallback chain.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing langchain provider")
	return nil
}
