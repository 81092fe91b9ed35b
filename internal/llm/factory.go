package llm

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/docqa/internal/config"
)

// NewFromConfig creates the chat provider named by cfg.Provider, wrapped in
// a rate limiter when cfg.RateLimitRPM is set. API keys come from the
// provider's conventional environment variable.
func NewFromConfig(cfg config.LLMConfig) (Provider, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM > 0 {
		return NewRateLimitedProvider(p, cfg.RateLimitRPM), nil
	}
	return p, nil
}

func newProvider(cfg config.LLMConfig) (Provider, error) {
	apiKey := func() (string, error) {
		name := config.APIKeyEnvVar(cfg.Provider)
		key := os.Getenv(name)
		if key == "" {
			return "", fmt.Errorf("%s environment variable is not set", name)
		}
		return key, nil
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		return NewOpenAIProvider(key, cfg.Model, cfg.BaseURL), nil

	case config.ProviderGroq:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		return NewGroqProvider(key, cfg.Model, cfg.BaseURL), nil

	case config.ProviderAzure:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("llm.base_url or AZURE_OPENAI_ENDPOINT is required for azure")
		}
		return NewAzureProvider(key, endpoint, cfg.APIVersion, cfg.Model), nil

	case config.ProviderOllama:
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaProvider(host, cfg.Model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}
}
