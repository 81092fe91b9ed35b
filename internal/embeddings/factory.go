package embeddings

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/docqa/internal/config"
)

// NewFromConfig creates the embedder named by cfg.Provider. API keys come
// from the provider's conventional environment variable.
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIEmbedder(apiKey, cfg.Model, cfg.Dimensions, cfg.BaseURL), nil

	case config.ProviderAzure:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderAzure))
		if apiKey == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_API_KEY environment variable is not set")
		}
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedding.base_url or AZURE_OPENAI_ENDPOINT is required for azure")
		}
		return NewAzureEmbedder(apiKey, endpoint, cfg.APIVersion, cfg.Model, cfg.Dimensions), nil

	case config.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(cfg.Model, cfg.Dimensions, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
