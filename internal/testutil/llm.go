package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ziadkadry99/docqa/internal/llm"
)

// ScriptedProvider replays queued responses in order and records every
// request. Once the queue is empty it falls back to Respond, or to a plain
// "done" answer.
type ScriptedProvider struct {
	Respond func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu       sync.Mutex
	queue    []scripted
	requests []llm.CompletionRequest
}

type scripted struct {
	resp *llm.CompletionResponse
	err  error
}

func NewScriptedProvider(responses ...*llm.CompletionResponse) *ScriptedProvider {
	p := &ScriptedProvider{}
	for _, r := range responses {
		p.queue = append(p.queue, scripted{resp: r})
	}
	return p
}

func (p *ScriptedProvider) Name() string { return "scripted" }

// Push appends a response to the queue.
func (p *ScriptedProvider) Push(resp *llm.CompletionResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scripted{resp: resp})
}

// Fail appends an error to the queue.
func (p *ScriptedProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scripted{err: err})
}

func (p *ScriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		return next.resp, next.err
	}
	respond := p.Respond
	p.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return Text("done"), nil
}

// Stream delivers the scripted content word by word.
func (p *ScriptedProvider) Stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string)) (*llm.CompletionResponse, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onDelta != nil && resp.Content != "" {
		for _, piece := range strings.SplitAfter(resp.Content, " ") {
			if piece != "" {
				onDelta(piece)
			}
		}
	}
	return resp, nil
}

// Requests returns a copy of the recorded requests.
func (p *ScriptedProvider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

// Text is a final assistant answer.
func Text(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:      content,
		Model:        "scripted-model",
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 5,
	}
}

// Calls is an assistant turn that requests tool calls.
func Calls(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls:    calls,
		Model:        "scripted-model",
		FinishReason: "tool_calls",
		InputTokens:  10,
		OutputTokens: 5,
	}
}

// Call builds a tool call with a {"query": ...} argument.
func Call(id, name, query string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return llm.ToolCall{ID: id, Name: name, Arguments: string(args)}
}
