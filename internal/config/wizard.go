package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docqa! Let's configure your assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select chat model provider",
		Items: []string{"openai", "azure", "groq", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: preset.Model,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if provider == ProviderAzure {
		endpointPrompt := promptui.Prompt{
			Label: "Azure OpenAI endpoint (https://<resource>.openai.azure.com)",
			Validate: func(s string) error {
				if !strings.HasPrefix(s, "https://") {
					return fmt.Errorf("endpoint must start with https://")
				}
				return nil
			},
		}
		endpoint, err := endpointPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("azure endpoint: %w", err)
		}
		cfg.LLM.BaseURL = endpoint
		cfg.Embedding.BaseURL = endpoint
	}

	embeddingProvider := embeddingProviderFor(provider)
	dimPrompt := promptui.Prompt{
		Label:   fmt.Sprintf("Embedding dimensions for %s", preset.EmbeddingModel),
		Default: strconv.Itoa(preset.Dimensions),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	dimStr, err := dimPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("embedding dimensions: %w", err)
	}
	dims, _ := strconv.Atoi(dimStr)

	storagePrompt := promptui.Prompt{
		Label:   "Document storage directory",
		Default: cfg.Storage.Root,
	}
	storageRoot, err := storagePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}

	accountPrompt := promptui.Prompt{
		Label:   "Storage account for citation links (leave blank for local links)",
		Default: "",
	}
	account, err := accountPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("storage account: %w", err)
	}
	if account != "" {
		containerPrompt := promptui.Prompt{
			Label:   "Storage container",
			Default: "accepted",
		}
		container, err := containerPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("storage container: %w", err)
		}
		cfg.Storage.Account = account
		cfg.Storage.Container = container
	}

	cfg.LLM.Provider = provider
	cfg.LLM.Model = model
	cfg.Embedding.Provider = embeddingProvider
	cfg.Embedding.Model = GetPreset(embeddingProvider).EmbeddingModel
	cfg.Embedding.Dimensions = dims
	cfg.Storage.Root = storageRoot

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, envVar := range []string{APIKeyEnvVar(provider), cfg.Grounding.APIKeyEnv} {
		if envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment (or .env) before running docqa.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// chat provider. Groq serves no embeddings, so it falls back to OpenAI.
func embeddingProviderFor(p ProviderType) ProviderType {
	switch p {
	case ProviderOllama, ProviderAzure:
		return p
	default:
		return ProviderOpenAI
	}
}
