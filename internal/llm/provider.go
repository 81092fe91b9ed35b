package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// StreamingProvider is a Provider that can emit content as it is generated.
type StreamingProvider interface {
	Provider
	// Stream calls onDelta with each content fragment and returns the
	// assembled response, tool calls included, once the stream ends.
	Stream(ctx context.Context, req CompletionRequest, onDelta func(string)) (*CompletionResponse, error)
}
