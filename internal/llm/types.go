package llm

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition describes a function the model may call. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string

	// Name is the tool name on RoleTool messages.
	Name string
	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string
	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool

	Tools []ToolDefinition
	// ToolChoice is "auto", "none", "required", or empty for the provider default.
	ToolChoice string
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}
