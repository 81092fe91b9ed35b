package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = ".docqa.yml"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "DOCQA_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (DOCQA_*). The first underscore after the
// prefix separates the section from the key, so DOCQA_LLM_MAX_TOKENS sets
// llm.max_tokens.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLLMProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderAzure:  true,
	ProviderGroq:   true,
	ProviderOllama: true,
}

// Groq has no embeddings endpoint.
var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderAzure:  true,
	ProviderOllama: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if !validLLMProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of openai, azure, groq, ollama", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, azure, ollama", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d)", c.Chunking.Size)
	}

	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir is required")
	}
	if c.Index.BatchSize < 0 {
		return fmt.Errorf("index.batch_size must be non-negative")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent.max_steps must be non-negative")
	}
	if c.Ingest.Concurrency < 0 {
		return fmt.Errorf("ingest.concurrency must be non-negative")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAzure:
		return "AZURE_OPENAI_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	default:
		return ""
	}
}
