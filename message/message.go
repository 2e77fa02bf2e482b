// Package message defines the tagged-sum Message type that forms the single
// source of truth for a conversation: an append-only log of user, assistant,
// tool, and system turns. Messages never mutate once appended; the log only
// grows.
package message

import "encoding/json"

// Role identifies which of the four Message variants a Message carries.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by an LLM, optionally carrying
	// tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool marks a message carrying the result of a single tool call.
	RoleTool Role = "tool"
	// RoleSystem marks a message carrying a prompt or instruction.
	RoleSystem Role = "system"
)

// ToolCall is a single tool invocation requested by an assistant message.
type ToolCall struct {
	// ID uniquely identifies this call so a later Tool message can reference it.
	ID string `json:"id"`
	// Name is the tool identifier (e.g. "handoff_to_m", "add_memory").
	Name string `json:"name"`
	// Arguments is the tool's structured argument object, already decoded from
	// the provider's JSON wire format.
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a tagged sum over the four conversation turn variants described
// in spec.md §3. Exactly one of the role-specific fields is meaningful at a
// time; Role discriminates which.
//
// Index is assigned by the log when the message is appended and is never
// reused or reassigned; it gives every message a stable, monotonic position.
type Message struct {
	Role Role `json:"role"`
	// Index is the message's position in the owning log, assigned on append.
	Index int `json:"index"`

	// Content holds the textual content for User, Assistant, System, and Tool
	// messages (the tool's result rendered as text).
	Content string `json:"content,omitempty"`

	// ToolCalls is populated only on Assistant messages that request tool
	// invocations. Empty for a terminal assistant reply.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is populated only on Tool messages; it must reference the ID
	// of a ToolCall carried by an earlier Assistant message.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is populated only on Tool messages, naming the tool that
	// produced Content.
	ToolName string `json:"tool_name,omitempty"`
}

// NewUser constructs a User message (Index left unset; the log assigns it).
func NewUser(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystem constructs a System message.
func NewSystem(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewAssistant constructs a terminal Assistant message with no tool calls.
func NewAssistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewAssistantToolCalls constructs an Assistant message carrying one or more
// tool calls. Content may be empty if the provider emitted no accompanying text.
func NewAssistantToolCalls(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewTool constructs a Tool message answering the given tool call.
func NewTool(toolCallID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, ToolName: toolName, Content: content}
}

// IsTerminalAssistant reports whether m is an assistant message with no
// pending tool calls — the signal that an agent node's inner loop (spec.md
// §4.5) should stop.
func (m Message) IsTerminalAssistant() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) == 0
}
