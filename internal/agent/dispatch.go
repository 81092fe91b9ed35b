package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/tools"
)

const (
	ragTool       = "rag"
	groundingTool = "grounding"
)

// ToolTrace records one tool call of a turn.
type ToolTrace struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Query    string `json:"query"`
	Result   string `json:"result"`
	Rejected bool   `json:"rejected,omitempty"`
	// Auto marks grounding calls the dispatcher made on the model's behalf.
	Auto bool `json:"auto,omitempty"`
}

// dispatcher executes tool calls for one turn and enforces the ordering
// contract: rag first, grounding only after rag came back empty, never both
// in the same step.
type dispatcher struct {
	rag       Tool
	grounding Tool
	logger    *zap.Logger
	emit      func(Event)

	ragCalls     int
	ragEmpty     bool // a rag call returned the no-documents sentinel
	ragFailed    bool
	ragFound     bool
	grounded     bool
	groundResult string
	autoCalls    int
	trace        []ToolTrace
}

type toolArgs struct {
	Query string `json:"query"`
}

// run executes a batch of calls from one assistant message, sequentially,
// and returns the tool messages answering them.
func (d *dispatcher) run(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	batchHasRag := false
	for _, c := range calls {
		if c.Name == ragTool {
			batchHasRag = true
		}
	}

	out := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		d.emit(ToolInvocation{ID: call.ID, Name: call.Name, Args: call.Arguments})

		query, rejection := d.check(call, batchHasRag)
		var result string
		if rejection != "" {
			result = rejection
			d.logger.Warn("tool call rejected",
				zap.String("tool", call.Name),
				zap.String("reason", rejection))
		} else {
			result = d.execute(ctx, call.Name, query)
		}

		d.trace = append(d.trace, ToolTrace{
			ID:       call.ID,
			Name:     call.Name,
			Query:    query,
			Result:   result,
			Rejected: rejection != "",
		})
		d.emit(ToolResult{ID: call.ID, Name: call.Name, Payload: result, Rejected: rejection != ""})
		out = append(out, llm.Message{
			Role:       llm.RoleTool,
			Name:       call.Name,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
	return out
}

// check returns the query to run, or a rejection message.
func (d *dispatcher) check(call llm.ToolCall, batchHasRag bool) (string, string) {
	var args toolArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", fmt.Sprintf("Rejected: invalid arguments for %s: %v", call.Name, err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", fmt.Sprintf("Rejected: %s requires a non-empty query argument.", call.Name)
	}

	switch call.Name {
	case ragTool:
		return query, ""
	case groundingTool:
		switch {
		case batchHasRag:
			return query, "Rejected: grounding cannot run in the same step as rag. Wait for the rag result first."
		case d.ragCalls == 0:
			return query, "Rejected: call rag first. grounding is only allowed after rag finds no relevant documents."
		case d.ragFound:
			return query, "Rejected: rag already found relevant documents. Answer from the rag result."
		case !d.ragEmpty && d.ragFailed:
			return query, "Rejected: rag failed with an error, so it is unknown whether the documents cover this. Retry rag or tell the user the documents could not be searched."
		case d.grounded:
			return query, "Rejected: grounding already answered this turn."
		}
		return query, ""
	default:
		return query, fmt.Sprintf("Rejected: unknown tool %q.", call.Name)
	}
}

func (d *dispatcher) execute(ctx context.Context, name, query string) string {
	switch name {
	case ragTool:
		result := d.rag.Run(ctx, query)
		d.ragCalls++
		switch {
		case tools.IsSentinel(result):
			d.ragEmpty = true
		case tools.IsFailure(result):
			d.ragFailed = true
		default:
			d.ragFound = true
		}
		return result
	case groundingTool:
		d.grounded = true
		d.groundResult = d.grounding.Run(ctx, query)
		return d.groundResult
	}
	return ""
}

// needsGrounding reports whether rag came back empty and nothing has
// grounded the turn yet. A failed rag call does not count as empty.
func (d *dispatcher) needsGrounding() bool {
	return d.ragEmpty && !d.ragFound && !d.grounded
}

// autoGround invokes grounding on the model's behalf. It returns the
// assistant message holding the synthetic call and the tool reply.
func (d *dispatcher) autoGround(ctx context.Context, query string) (llm.Message, llm.Message) {
	d.autoCalls++
	args, _ := json.Marshal(toolArgs{Query: query})
	call := llm.ToolCall{
		ID:        fmt.Sprintf("auto_grounding_%d", d.autoCalls),
		Name:      groundingTool,
		Arguments: string(args),
	}
	d.logger.Info("rag found nothing, grounding automatically", zap.String("query", query))

	d.emit(ToolInvocation{ID: call.ID, Name: call.Name, Args: call.Arguments})
	result := d.execute(ctx, groundingTool, query)
	d.trace = append(d.trace, ToolTrace{ID: call.ID, Name: groundingTool, Query: query, Result: result, Auto: true})
	d.emit(ToolResult{ID: call.ID, Name: call.Name, Payload: result})

	return llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		llm.Message{Role: llm.RoleTool, Name: groundingTool, ToolCallID: call.ID, Content: result}
}

func toolDefinitions(rag, grounding Tool) []llm.ToolDefinition {
	schema := func(desc string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": desc,
				},
			},
			"required": []string{"query"},
		}
	}
	return []llm.ToolDefinition{
		{
			Name:        ragTool,
			Description: rag.Description(),
			Parameters:  schema("The user's question or focused search terms."),
		},
		{
			Name:        groundingTool,
			Description: grounding.Description(),
			Parameters:  schema("The user's question."),
		},
	}
}
