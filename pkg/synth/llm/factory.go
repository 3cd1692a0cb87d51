package llm

import (
	"fmt"
	"os"

	"autopatch/pkg/config"
)

// NewClient builds the backend named by cfg, wrapped with the default
// transport retry. API keys come from the config secrets layer.
func NewClient(cfg config.ModelConfig) (Client, error) {
	var raw Client

	switch cfg.Provider {
	case config.ProviderAnthropic:
		key, err := config.GetSecret(config.SecretAnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		raw = NewAnthropicClient(key, cfg.Name)
	case config.ProviderOpenAI:
		key, err := config.GetSecret(config.SecretOpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		raw = NewOpenAIClient(key, cfg.Name)
	case config.ProviderGoogle:
		key, err := config.GetSecret(config.SecretGeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		raw = NewGoogleClient(key, cfg.Name)
	case config.ProviderOllama:
		host := os.Getenv("OLLAMA_HOST")
		raw = NewOllamaClient(host, cfg.Name)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	return NewRetryableClient(raw, DefaultRetryConfig), nil
}
