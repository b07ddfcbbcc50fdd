package domain

import "time"

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	// RoleSystem is only used when assembling completion requests.
	// System messages are never persisted.
	RoleSystem Role = "system"
)

// IsValid returns true if the role may be persisted.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// SessionConfig holds per-session settings. It is stored as JSON.
type SessionConfig struct {
	Model         string   `json:"model,omitempty"`
	FallbackModel string   `json:"fallback_model,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	RetrievalK    int      `json:"retrieval_k,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ContextTokens int      `json:"context_tokens,omitempty"`
	MaxToolRounds int      `json:"max_tool_rounds,omitempty"`
}

// Session owns an ordered sequence of messages.
type Session struct {
	ID        string
	StartedAt time.Time
	Config    SessionConfig
	Summary   string
}

// ToolCall is a structured tool request parsed from a model response.
type ToolCall struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// Message is one entry in a session transcript.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string

	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCall

	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string
	ToolName   string

	// Embedding is present once the message is in the retrieval index.
	Embedding []float32

	CreatedAt time.Time
}

// TurnResult is the outcome of one coordinator turn.
type TurnResult struct {
	// Messages are the messages persisted by the turn, in order.
	Messages []Message

	// Reply is the final assistant message.
	Reply Message

	// ToolRounds counts completions that requested tools.
	ToolRounds int

	// Retrieved are the chunks placed in the augmented context.
	Retrieved []ScoredChunk

	// Degraded is true when retrieval failed and the turn ran without context.
	Degraded bool
}
