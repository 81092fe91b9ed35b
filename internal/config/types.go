package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderAzure  ProviderType = "azure"
	ProviderGroq   ProviderType = "groq"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level docqa configuration, corresponding to .docqa.yml.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" koanf:"chunking"`
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	Storage   StorageConfig   `yaml:"storage" koanf:"storage"`
	Grounding GroundingConfig `yaml:"grounding" koanf:"grounding"`
	Agent     AgentConfig     `yaml:"agent" koanf:"agent"`
	Speech    SpeechConfig    `yaml:"speech" koanf:"speech"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Ingest    IngestConfig    `yaml:"ingest" koanf:"ingest"`
}

// LLMConfig selects the chat-completion model.
type LLMConfig struct {
	Provider     ProviderType `yaml:"provider" koanf:"provider"`
	Model        string       `yaml:"model" koanf:"model"`
	Temperature  float32      `yaml:"temperature" koanf:"temperature"`
	MaxTokens    int          `yaml:"max_tokens" koanf:"max_tokens"`
	BaseURL      string       `yaml:"base_url,omitempty" koanf:"base_url"`
	APIVersion   string       `yaml:"api_version,omitempty" koanf:"api_version"`
	RateLimitRPM int          `yaml:"rate_limit_rpm,omitempty" koanf:"rate_limit_rpm"`
}

// EmbeddingConfig selects the embedding model. Dimensions is fixed for the
// lifetime of an index.
type EmbeddingConfig struct {
	Provider   ProviderType  `yaml:"provider" koanf:"provider"`
	Model      string        `yaml:"model" koanf:"model"`
	Dimensions int           `yaml:"dimensions" koanf:"dimensions"`
	BaseURL    string        `yaml:"base_url,omitempty" koanf:"base_url"`
	APIVersion string        `yaml:"api_version,omitempty" koanf:"api_version"`
	CacheTTL   time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size" koanf:"size"`
	Overlap int `yaml:"overlap" koanf:"overlap"`
}

// IndexConfig describes where the vector index and its SQLite ledger live.
type IndexConfig struct {
	Dir        string `yaml:"dir" koanf:"dir"`
	Collection string `yaml:"collection" koanf:"collection"`
	LedgerPath string `yaml:"ledger_path" koanf:"ledger_path"`
	BatchSize  int    `yaml:"batch_size" koanf:"batch_size"`
	Compress   bool   `yaml:"compress" koanf:"compress"`
}

// StorageConfig holds the blob namespace root and the settings used to build
// public document URLs for citations.
type StorageConfig struct {
	Root      string `yaml:"root" koanf:"root"`
	Account   string `yaml:"account,omitempty" koanf:"account"`
	Container string `yaml:"container,omitempty" koanf:"container"`
	BaseURL   string `yaml:"base_url,omitempty" koanf:"base_url"`
}

type GroundingConfig struct {
	Endpoint  string        `yaml:"endpoint" koanf:"endpoint"`
	Model     string        `yaml:"model" koanf:"model"`
	APIKeyEnv string        `yaml:"api_key_env" koanf:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" koanf:"timeout"`
}

type AgentConfig struct {
	MaxSteps     int     `yaml:"max_steps" koanf:"max_steps"`
	Temperature  float32 `yaml:"temperature" koanf:"temperature"`
	HistoryLimit int     `yaml:"history_limit" koanf:"history_limit"`
}

// SpeechConfig selects the OpenAI speech models. BaseURL points them at an
// OpenAI-compatible endpoint.
type SpeechConfig struct {
	STTModel string `yaml:"stt_model" koanf:"stt_model"`
	TTSModel string `yaml:"tts_model" koanf:"tts_model"`
	Voice    string `yaml:"voice" koanf:"voice"`
	BaseURL  string `yaml:"base_url,omitempty" koanf:"base_url"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" koanf:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	File   string `yaml:"file" koanf:"file"`
	Format string `yaml:"format" koanf:"format"`
}

// IngestConfig controls folder indexing.
type IngestConfig struct {
	Concurrency int      `yaml:"concurrency" koanf:"concurrency"`
	Include     []string `yaml:"include" koanf:"include"`
	Exclude     []string `yaml:"exclude" koanf:"exclude"`
}
