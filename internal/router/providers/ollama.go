package providers

import (
	"github.com/ariarun/aria/internal/router"
)

// OllamaConfig configures the Ollama adapter. Ollama serves an
// OpenAI-compatible /v1 surface, so the adapter is a thin wrapper around
// OpenAI with a different base URL and no API key requirement.
type OllamaConfig struct {
	// BaseURL is the Ollama server's OpenAI-compatible endpoint, e.g.
	// "http://localhost:11434/v1".
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Ollama implements router.Provider against a local Ollama server.
type Ollama struct {
	*OpenAI
}

// NewOllama constructs an Ollama adapter.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3"
	}

	inner, err := NewOpenAI(OpenAIConfig{
		APIKey:       "ollama",
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.DefaultModel,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	inner.name = "ollama"
	return &Ollama{OpenAI: inner}, nil
}

// EstimateCost is always zero: local inference has no per-token billing.
func (o *Ollama) EstimateCost(req router.Request, resp router.Response) float64 {
	return 0
}
