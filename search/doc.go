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


// Package search implements hybrid retrieval over a medical knowledge graph.
//
// A Retriever answers a query through four independent channels:
//   - vector similarity between the query embedding and chunk embeddings
//   - full-text keyword search over chunk text
//   - entity search over entity names and descriptions
//   - graph traversal from symptoms mentioned in the query to diseases and red flags
//
// The channels run concurrently, each under its own timeout. A failing channel
// contributes nothing and is reported in core.RAGContext.Channels; retrieval
// only fails when every attempted channel failed and the store was unreachable.
//
// Vector and keyword hits are merged by chunk id. Vector hits come first and
// keep their score; keyword scores are weighted by KeywordWeight.
//
// FormatContext renders a core.RAGContext as prompt context for a language
// model. PossibleConditions, RedFlags and Interactions are direct clinical
// lookups on the graph.
package search
