package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"RegIngest/internal/config"
)

// NewModel builds the process-wide model handle for the configured provider.
func NewModel(cfg config.EnrichmentConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("enrichment model is not configured")
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		token := cfg.APIKey
		if token == "" {
			// OpenAI-compatible local servers accept any token.
			token = "none"
		}
		opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		return openai.New(opts...)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
		}
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", cfg.Provider)
	}
}
