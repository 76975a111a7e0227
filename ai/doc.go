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


// Package ai provides abstractions for the AI services used by medrag.
//
// Three capabilities are defined:
//
//   - Embedder: turns text into vectors
//   - Completer: turns a prompt into generated text
//   - Extractor: turns text into typed entities and relationships
//
// An AIProvider bundles the three so they can be configured and closed together.
//
// # Composition
//
// The package also ships the pieces that are independent of any model vendor:
//
//   - CompletionExtractor builds an Extractor from any Completer and a schema.
//   - FallbackCompleter tries a prioritized list of completers.
//   - LazyEmbedder defers building an embedder until it is first needed.
//   - ParseExtraction decodes loosely formatted model replies.
//
// # Implementation Packages
//
//   - ai/langchain: OpenAI-compatible, Ollama and Anthropic clients via langchaingo
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors in ai/langchain return interface types. Mock
// constructors return concrete types so tests can inject behavior and
// assert on call counts.
//
// # Usage Example
//
//	provider, err := langchain.NewProvider(ai.DefaultConfig(), schema.Medical)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "fever and chills")
//	graph, err := provider.Extractor().Extract(ctx, "Fever is a symptom of malaria.")
package ai
