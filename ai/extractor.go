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
	"context"
	"log/slog"

	"github.com/poiesic/medrag/schema"
)

// DefaultMaxExtractionInput is the default character cap for extraction input.
const DefaultMaxExtractionInput = 4000

// CompletionExtractor implements Extractor by prompting a Completer.
type CompletionExtractor struct {
	completer Completer
	schema    *schema.Schema
	maxInput  int
	logger    *slog.Logger
}

var _ Extractor = (*CompletionExtractor)(nil)

// NewCompletionExtractor creates an extractor that asks completer for the
// entity and relationship types declared in s. Input longer than maxInput
// characters is truncated; maxInput <= 0 selects DefaultMaxExtractionInput.
func NewCompletionExtractor(completer Completer, s *schema.Schema, maxInput int) (*CompletionExtractor, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	if s == nil {
		s = schema.Medical
	}
	if maxInput <= 0 {
		maxInput = DefaultMaxExtractionInput
	}
	return &CompletionExtractor{
		completer: completer,
		schema:    s,
		maxInput:  maxInput,
		logger:    slog.Default().With("component", "extractor", "schema", s.Name()),
	}, nil
}

// Extract prompts the completer and decodes its reply.
func (e *CompletionExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	prompt := BuildExtractionPrompt(e.schema, truncateRunes(text, e.maxInput))

	response, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		e.logger.Error("failed to generate extraction", "err", err)
		return nil, err
	}

	extraction, err := ParseExtraction(response)
	if err != nil {
		e.logger.Warn("error parsing extraction response", "response", response, "err", err)
		return nil, err
	}

	e.logger.Debug("extracted knowledge",
		"entities", len(extraction.Entities),
		"relationships", len(extraction.Relationships))
	return extraction, nil
}
