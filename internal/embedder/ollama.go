package embedder

import (
	"strings"
	"time"
)

// OllamaConfig holds the settings for an Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder returns an embedder for a local Ollama server. Ollama
// serves the OpenAI embeddings protocol under /v1 and ignores the API key.
// Local models can be slow to load, so the timeout is longer.
func NewOllamaEmbedder(cfg *OllamaConfig) *OpenAIEmbedder {
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: strings.TrimRight(cfg.Host, "/") + "/v1",
		APIKey:  "ollama",
		Model:   cfg.Model,
		Timeout: 60 * time.Second,
	})
}
