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
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/medrag/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer over any langchaingo model.
type Completer struct {
	model       llms.Model
	name        string
	temperature float64
	logger      *slog.Logger
}

var _ ai.Completer = (*Completer)(nil)

// NewCompleter builds a completer for one entry of the fallback chain.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(cc ai.CompleterConfig, temperature float64) (ai.Completer, error) {
	return newCompleter(cc, temperature)
}

func newCompleter(cc ai.CompleterConfig, temperature float64) (*Completer, error) {
	var (
		model llms.Model
		err   error
	)

	switch cc.Provider {
	case ai.ProviderOpenAI:
		token := cc.Token
		if token == "" {
			token = "none"
		}
		model, err = openai.New(
			openai.WithBaseURL(cc.Host),
			openai.WithToken(token),
			openai.WithModel(cc.Model),
		)
	case ai.ProviderOllama:
		model, err = ollama.New(
			ollama.WithServerURL(cc.Host),
			ollama.WithModel(cc.Model),
		)
	case ai.ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithToken(cc.Token),
			anthropic.WithModel(cc.Model),
		}
		if cc.Host != "" {
			opts = append(opts, anthropic.WithBaseURL(cc.Host))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cc.Provider)
	}
	if err != nil {
		return nil, err
	}

	name := cc.Provider + ":" + cc.Model
	return &Completer{
		model:       model,
		name:        name,
		temperature: temperature,
		logger:      slog.Default().With("component", "langchain-completer", "completer", name),
	}, nil
}

// Complete sends prompt as a single human message.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("generating completion", "length", len(prompt))

	reply, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		c.logger.Error("failed to generate completion", "err", err)
		return "", err
	}
	return reply, nil
}

// String returns "provider:model".
func (c *Completer) String() string {
	return c.name
}
