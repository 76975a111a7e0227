// Package langchain implements the ai interfaces on top of langchaingo.
//
// Embeddings go through any OpenAI-compatible endpoint (Ollama, vLLM,
// LocalAI, OpenAI). Completions can use an OpenAI-compatible server, a
// native Ollama server or Anthropic; several may be listed in priority
// order and are wrapped in an ai.FallbackCompleter.
//
//	provider, err := langchain.NewProvider(ai.NewConfig(
//	    ai.WithEmbeddingModel("nomic-embed-text"),
//	    ai.WithCompleters(
//	        ai.CompleterConfig{Provider: ai.ProviderOllama, Host: "http://localhost:11434", Model: "qwen2.5:7b"},
//	        ai.CompleterConfig{Provider: ai.ProviderAnthropic, Model: "claude-3-5-haiku-latest", Token: key},
//	    ),
//	), schema.Medical)
package langchain
