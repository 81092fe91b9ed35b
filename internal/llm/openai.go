package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL            = "https://api.groq.com/openai/v1"
	defaultAzureAPIVersion = "2024-06-01"
	defaultMaxTokens       = 4096
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// It also serves Azure OpenAI and any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates a new OpenAI provider. A non-empty baseURL
// points it at an OpenAI-compatible endpoint.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		name:   "openai",
	}
}

// NewGroqProvider creates a provider for Groq's OpenAI-compatible API.
func NewGroqProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	p := NewOpenAIProvider(apiKey, model, baseURL)
	p.name = "groq"
	return p
}

// NewAzureProvider creates a provider for an Azure OpenAI deployment.
func NewAzureProvider(apiKey, endpoint, apiVersion, deployment string) *OpenAIProvider {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}
	cfg.APIVersion = apiVersion
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  deployment,
		name:   "azure",
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleTool {
			m.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, m)
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ToolChoice != "" && len(req.Tools) > 0 {
		apiReq.ToolChoice = req.ToolChoice
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return apiReq
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}

	out := &CompletionResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		out.FinishReason = string(choice.FinishReason)
		for _, tc := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out, nil
}

// Stream implements StreamingProvider. Tool-call fragments are merged by
// their index as they arrive.
func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest, onDelta func(string)) (*CompletionResponse, error) {
	apiReq := p.buildRequest(req)
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat stream: %w", p.name, err)
	}
	defer stream.Close()

	out := &CompletionResponse{}
	var content strings.Builder
	calls := make(map[int]*ToolCall)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s chat stream: %w", p.name, err)
		}

		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.InputTokens = chunk.Usage.PromptTokens
			out.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
		if d := choice.Delta.Content; d != "" {
			content.WriteString(d)
			if onDelta != nil {
				onDelta(d)
			}
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &ToolCall{}
				calls[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	out.Content = content.String()
	if len(calls) > 0 {
		indexes := make([]int, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			out.ToolCalls = append(out.ToolCalls, *calls[idx])
		}
	}
	return out, nil
}
