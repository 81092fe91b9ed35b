// Package agent runs the conversational loop that answers questions with the
// rag and grounding tools, persisting each thread's history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/llm"
)

// DefaultMaxSteps bounds the model calls of one turn.
const DefaultMaxSteps = 6

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrMaxSteps   = errors.New("agent did not produce an answer within the step limit")
)

// Tool is a single-argument tool the model can call.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, query string) string
}

// Options wires an Agent. Provider, RAG, Grounding and Memory are required.
type Options struct {
	Provider  llm.Provider
	RAG       Tool
	Grounding Tool
	Memory    *Memory

	Model        string
	SystemPrompt string
	MaxSteps     int
	Temperature  float64
	MaxTokens    int
	// HistoryLimit caps the stored messages sent to the model. Zero sends
	// the whole thread.
	HistoryLimit int
	Logger       *zap.Logger
}

// Agent answers user turns on persistent threads.
type Agent struct {
	provider  llm.Provider
	rag       Tool
	grounding Tool
	memory    *Memory
	tools     []llm.ToolDefinition

	model        string
	prompt       string
	maxSteps     int
	temperature  float64
	maxTokens    int
	historyLimit int
	logger       *zap.Logger

	locks threadLocks
}

// Reply is the outcome of a completed turn.
type Reply struct {
	Text     string      `json:"text"`
	ThreadID string      `json:"thread_id"`
	Trace    []ToolTrace `json:"trace"`
	Usage    llm.Usage   `json:"usage"`
}

func New(opts Options) (*Agent, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("agent: provider is required")
	case opts.RAG == nil || opts.Grounding == nil:
		return nil, errors.New("agent: rag and grounding tools are required")
	case opts.Memory == nil:
		return nil, errors.New("agent: memory is required")
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Agent{
		provider:     opts.Provider,
		rag:          opts.RAG,
		grounding:    opts.Grounding,
		memory:       opts.Memory,
		tools:        toolDefinitions(opts.RAG, opts.Grounding),
		model:        opts.Model,
		prompt:       opts.SystemPrompt,
		maxSteps:     opts.MaxSteps,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		historyLimit: opts.HistoryLimit,
		logger:       opts.Logger,
		locks:        threadLocks{m: make(map[string]*threadLock)},
	}, nil
}

// Memory returns the thread store.
func (a *Agent) Memory() *Memory { return a.memory }

// Invoke runs one turn to completion. An empty threadID starts a new thread.
func (a *Agent) Invoke(ctx context.Context, query, threadID string) (reply *Reply, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if threadID == "" {
		threadID = uuid.New().String()
	}

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("agent panic", zap.String("thread_id", threadID), zap.Any("panic", rec))
			reply, err = nil, fmt.Errorf("agent: %v", rec)
		}
	}()

	return a.turn(ctx, query, threadID, func(Event) {})
}

// Stream runs one turn and delivers its events. The channel closes after a
// Final or an ErrorEvent.
func (a *Agent) Stream(ctx context.Context, query, threadID string) <-chan Event {
	events := make(chan Event, 16)
	if threadID == "" {
		threadID = uuid.New().String()
	}

	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("agent stream panic", zap.String("thread_id", threadID), zap.Any("panic", rec))
				emit(ErrorEvent{Message: fmt.Sprintf("agent: %v", rec), ThreadID: threadID})
			}
		}()

		if strings.TrimSpace(query) == "" {
			emit(ErrorEvent{Message: ErrEmptyQuery.Error(), ThreadID: threadID})
			return
		}

		reply, err := a.turn(ctx, query, threadID, emit)
		if err != nil {
			emit(ErrorEvent{Message: err.Error(), ThreadID: threadID})
			return
		}
		emit(Final{Text: reply.Text, ThreadID: reply.ThreadID, Trace: reply.Trace})
	}()

	return events
}

func (a *Agent) turn(ctx context.Context, query, threadID string, emit func(Event)) (*Reply, error) {
	unlock := a.locks.lock(threadID)
	defer unlock()

	log := a.logger.With(zap.String("thread_id", threadID))
	log.Info("turn started", zap.String("query", query))

	history, err := a.memory.History(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turnMsgs := []llm.Message{{Role: llm.RoleUser, Content: query}}
	base := make([]llm.Message, 0, len(history)+2)
	base = append(base, llm.Message{Role: llm.RoleSystem, Content: a.prompt})
	base = append(base, trimHistory(history, a.historyLimit)...)

	d := &dispatcher{rag: a.rag, grounding: a.grounding, logger: log, emit: emit}
	reply := &Reply{ThreadID: threadID}

	steps := 0
	for {
		if steps >= a.maxSteps {
			if d.grounded && !d.ragFound {
				// The grounding answer is already formatted for the user.
				reply.Text = d.groundResult
				break
			}
			return nil, fmt.Errorf("%w (%d)", ErrMaxSteps, a.maxSteps)
		}

		resp, err := a.complete(ctx, llm.CompletionRequest{
			Model:       a.model,
			Messages:    append(base[:len(base):len(base)], turnMsgs...),
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
			Tools:       a.tools,
			ToolChoice:  "auto",
		}, emit)
		if err != nil {
			return nil, fmt.Errorf("model call: %w", err)
		}
		steps++
		reply.Usage.Add(resp)

		if len(resp.ToolCalls) == 0 {
			if d.needsGrounding() {
				call, result := d.autoGround(ctx, query)
				turnMsgs = append(turnMsgs, call, result)
				continue
			}
			reply.Text = resp.Content
			turnMsgs = append(turnMsgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			break
		}

		turnMsgs = append(turnMsgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		turnMsgs = append(turnMsgs, d.run(ctx, resp.ToolCalls)...)
	}

	if last := turnMsgs[len(turnMsgs)-1]; last.Role != llm.RoleAssistant || len(last.ToolCalls) > 0 {
		turnMsgs = append(turnMsgs, llm.Message{Role: llm.RoleAssistant, Content: reply.Text})
	}
	if err := a.memory.Append(ctx, threadID, turnMsgs...); err != nil {
		return nil, fmt.Errorf("saving history: %w", err)
	}

	reply.Trace = d.trace
	log.Info("turn finished",
		zap.Int("model_calls", steps),
		zap.Int("tool_calls", len(d.trace)),
		zap.Int("input_tokens", reply.Usage.InputTokens),
		zap.Int("output_tokens", reply.Usage.OutputTokens))
	return reply, nil
}

// complete streams when the provider supports it, emitting the cumulative
// text of this model call.
func (a *Agent) complete(ctx context.Context, req llm.CompletionRequest, emit func(Event)) (*llm.CompletionResponse, error) {
	sp, ok := a.provider.(llm.StreamingProvider)
	if !ok {
		return a.provider.Complete(ctx, req)
	}
	var sb strings.Builder
	return sp.Stream(ctx, req, func(delta string) {
		sb.WriteString(delta)
		emit(TextDelta{Text: sb.String()})
	})
}

// threadLocks serializes turns per thread id. Entries are dropped once no
// turn holds or waits on them.
type threadLocks struct {
	mu sync.Mutex
	m  map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func (l *threadLocks) lock(id string) func() {
	l.mu.Lock()
	tl, ok := l.m[id]
	if !ok {
		tl = &threadLock{}
		l.m[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
