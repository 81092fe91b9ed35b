package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/docqa/internal/config"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}

	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	for _, p := range []config.ProviderType{config.ProviderOpenAI, config.ProviderAzure, config.ProviderGroq} {
		_, err := NewFromConfig(config.LLMConfig{Provider: p, Model: "some-model"})
		if err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	_, err := NewFromConfig(config.LLMConfig{Provider: "unknown", Model: "some-model"})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewFromConfig(config.LLMConfig{Provider: config.ProviderOllama, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != "http://localhost:11434" {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryNamesProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GROQ_API_KEY", "test-key")
	t.Setenv("AZURE_OPENAI_API_KEY", "test-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")

	tests := map[config.ProviderType]string{
		config.ProviderOpenAI: "openai",
		config.ProviderGroq:   "groq",
		config.ProviderAzure:  "azure",
	}
	for typ, want := range tests {
		p, err := NewFromConfig(config.LLMConfig{Provider: typ, Model: "m"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if p.Name() != want {
			t.Errorf("%s: Name() = %q, want %q", typ, p.Name(), want)
		}
		if _, ok := p.(StreamingProvider); !ok {
			t.Errorf("%s: expected a StreamingProvider", typ)
		}
	}
}

func TestFactoryWrapsRateLimit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	p, err := NewFromConfig(config.LLMConfig{Provider: config.ProviderOpenAI, Model: "m", RateLimitRPM: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*RateLimitedProvider); !ok {
		t.Errorf("expected *RateLimitedProvider, got %T", p)
	}
}

func TestOpenAIProviderToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("expected 1 tool in request, got %d", len(tools))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "c1", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "rag", "arguments": "{\"query\":\"paris\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o-mini", srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "capital of france?"}},
		Tools: []ToolDefinition{{
			Name:       "rag",
			Parameters: map[string]any{"type": "object"},
		}},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "rag" || tc.Arguments != `{"query":"paris"}` {
		t.Errorf("unexpected tool call %+v", tc)
	}
	if resp.FinishReason != "tool_calls" || resp.InputTokens != 12 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIProviderStream(t *testing.T) {
	chunks := []string{
		`{"id":"s","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"grounding","arguments":"{\"qu"}}]}}]}`,
		`{"id":"s","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"x\"}"}}]},"finish_reason":"tool_calls"}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o-mini", srv.URL)
	var deltas []string
	resp, err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(deltas, "") != "Hello" || resp.Content != "Hello" {
		t.Errorf("deltas = %v, content = %q", deltas, resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments != `{"query":"x"}` || resp.ToolCalls[0].ID != "call_9" {
		t.Errorf("unexpected tool calls %+v", resp.ToolCalls)
	}
}

func TestOllamaProviderToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		fmt.Fprint(w, `{"model":"llama3.1","done":true,"done_reason":"stop",
			"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"rag","arguments":{"query":"paris"}}}]}}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3.1")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
		Tools:    []ToolDefinition{{Name: "rag"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_0" || resp.ToolCalls[0].Arguments != `{"query":"paris"}` {
		t.Errorf("unexpected tool calls %+v", resp.ToolCalls)
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	ctx := context.Background()
	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := rl.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterStreamFallsBackToComplete(t *testing.T) {
	rl := NewRateLimitedProvider(NewMockProvider("test"), 60)

	var got string
	resp, err := rl.Stream(context.Background(), CompletionRequest{}, func(d string) { got += d })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "mock response" || resp.Content != "mock response" {
		t.Errorf("got %q / %q", got, resp.Content)
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	// First two should succeed immediately.
	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, req)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should block and eventually fail due to context timeout.
	_, err := rl.Complete(ctx, req)
	if err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
}

func TestEstimateCostKnownModels(t *testing.T) {
	for _, model := range []string{"gpt-4o-mini", "gpt-4o", "llama-3.3-70b-versatile", "sonar"} {
		if cost := EstimateCost(model, 1000, 500); cost <= 0 {
			t.Errorf("EstimateCost(%q) = %f, expected > 0", model, cost)
		}
	}
}

func TestEstimateCostUnknownModel(t *testing.T) {
	cost := EstimateCost("unknown-model", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestEstimateCostAccuracy(t *testing.T) {
	// gpt-4o: $2.50/1M input, $10/1M output
	cost := EstimateCost("gpt-4o", 1_000_000, 1_000_000)
	expected := 12.5
	if cost < expected-0.01 || cost > expected+0.01 {
		t.Errorf("expected cost ~$%.2f, got $%.2f", expected, cost)
	}
}

func TestUsageAccumulates(t *testing.T) {
	var u Usage
	u.Add(&CompletionResponse{InputTokens: 1_000_000, Model: "gpt-4o-mini"})
	u.Add(&CompletionResponse{OutputTokens: 1_000_000})
	u.Add(nil)

	if u.Calls != 2 || u.Model != "gpt-4o-mini" {
		t.Errorf("unexpected usage %+v", u)
	}
	if c := u.Cost(); c < 0.74 || c > 0.76 {
		t.Errorf("Cost() = %f, want 0.75", c)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"hello world!!", 3},
		{"a longer piece of text that has more characters", 11},
	}

	for _, tt := range tests {
		got := EstimateTokens(tt.text)
		if got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
