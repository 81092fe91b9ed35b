package embeddings

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const maxBatchSize = 100

// defaultAzureAPIVersion is used when the config leaves api_version empty.
const defaultAzureAPIVersion = "2024-06-01"

// OpenAIEmbedder generates embeddings using the OpenAI API or an Azure
// OpenAI deployment.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for api.openai.com. A non-empty
// baseURL points it at any OpenAI-compatible endpoint.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, baseURL string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// NewAzureEmbedder creates an embedder for an Azure OpenAI resource. The
// model name doubles as the deployment name.
func NewAzureEmbedder(apiKey, endpoint, apiVersion, deployment string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}
	cfg.APIVersion = apiVersion
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      deployment,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Name() string {
	return e.model
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	// Batch up to maxBatchSize texts per API call
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		req := openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		}
		if supportsDimensions(e.model) {
			req.Dimensions = e.dimensions
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}

		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}

		// The API documents Data as ordered, but each item carries its index.
		ordered := make([][]float32, len(batch))
		for _, emb := range resp.Data {
			if emb.Index < 0 || emb.Index >= len(batch) {
				return nil, fmt.Errorf("openai returned embedding index %d out of range", emb.Index)
			}
			ordered[emb.Index] = emb.Embedding
		}
		allEmbeddings = append(allEmbeddings, ordered...)
	}

	return allEmbeddings, nil
}

// supportsDimensions reports whether model accepts a shortened output size.
// Older models such as text-embedding-ada-002 reject the parameter.
func supportsDimensions(model string) bool {
	return strings.Contains(strings.ToLower(model), "text-embedding-3")
}
