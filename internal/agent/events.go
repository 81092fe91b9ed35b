package agent

import "encoding/json"

// Event is one update from a streamed turn. The set of implementations is
// closed: TextDelta, ToolInvocation, ToolResult, ErrorEvent and Final.
type Event interface {
	Kind() string
	isEvent()
}

// TextDelta carries the assistant text generated so far in the current
// model call. Consumers replace, not append.
type TextDelta struct {
	Text string `json:"text"`
}

// ToolInvocation reports a tool call requested by the model or by the
// dispatcher.
type ToolInvocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolResult carries the output of a tool call. Rejected calls were not
// executed and Payload explains why.
type ToolResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Payload  string `json:"payload"`
	Rejected bool   `json:"rejected,omitempty"`
}

// ErrorEvent ends a turn that failed.
type ErrorEvent struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Final ends a successful turn.
type Final struct {
	Text     string      `json:"text"`
	ThreadID string      `json:"thread_id"`
	Trace    []ToolTrace `json:"trace,omitempty"`
}

func (TextDelta) Kind() string      { return "text_delta" }
func (ToolInvocation) Kind() string { return "tool_invocation" }
func (ToolResult) Kind() string     { return "tool_result" }
func (ErrorEvent) Kind() string     { return "error" }
func (Final) Kind() string          { return "final" }

func (TextDelta) isEvent()      {}
func (ToolInvocation) isEvent() {}
func (ToolResult) isEvent()     {}
func (ErrorEvent) isEvent()     {}
func (Final) isEvent()          {}

// MarshalEvent encodes ev as a JSON object tagged with "type".
func MarshalEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = ev.Kind()
	return json.Marshal(fields)
}
