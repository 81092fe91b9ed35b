package config

import "time"

// ModelPreset describes the default models for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
	Dimensions     int
}

var modelPresets = map[ProviderType]ModelPreset{
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderAzure:  {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderGroq:   {Model: "llama-3.3-70b-versatile", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama: {Model: "llama3.1", EmbeddingModel: "nomic-embed-text", Dimensions: 768},
}

// DefaultExcludes are glob patterns skipped by folder indexing.
var DefaultExcludes = []string{
	".git/**",
	"**/.*",
	"**/~$*",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheTTL:   10 * time.Minute,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Index: IndexConfig{
			Dir:        ".docqa/index",
			Collection: "documents",
			LedgerPath: ".docqa/docqa.db",
			BatchSize:  100,
			Compress:   false,
		},
		Storage: StorageConfig{
			Root: ".docqa/blobs",
		},
		Grounding: GroundingConfig{
			Endpoint:  "https://api.perplexity.ai/chat/completions",
			Model:     "sonar",
			APIKeyEnv: "PERPLEXITY_API_KEY",
			Timeout:   30 * time.Second,
		},
		Agent: AgentConfig{
			MaxSteps:    6,
			Temperature: 0.1,
		},
		Speech: SpeechConfig{
			STTModel: "whisper-1",
			TTSModel: "tts-1",
			Voice:    "alloy",
		},
		Server: ServerConfig{
			Addr:           ":8000",
			RequestTimeout: 2 * time.Minute,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			File:   ".docqa/logs/docqa.log",
			Format: "console",
		},
		Ingest: IngestConfig{
			Concurrency: 4,
			Include:     []string{"**/*.pdf", "**/*.txt"},
			Exclude:     DefaultExcludes,
		},
	}
}

// GetPreset returns the model preset for the given provider, falling back to
// the OpenAI preset.
func GetPreset(provider ProviderType) ModelPreset {
	if preset, ok := modelPresets[provider]; ok {
		return preset
	}
	return modelPresets[ProviderOpenAI]
}
