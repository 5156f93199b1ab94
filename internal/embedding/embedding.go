package embedding

import (
	"fmt"
	"strings"

	"github.com/shimonpozd/astra-sub000/internal/config"
)

// New creates the embedding provider selected by configuration.
func New(cfg *config.EmbeddingConfig) (Embedding, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGoogleModel(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "ollama":
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// IsQuotaError reports whether the provider signaled a quota or billing
// problem. The recall pipeline treats such errors as "no semantic
// candidates" instead of failing the request.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "billing") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "429")
}
