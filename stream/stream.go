// Package stream delivers real-time agent execution updates to clients over
// Server-Sent Events (spec.md §4.9, §6.1). Stream events are client-facing;
// they are a narrower, wire-oriented view distinct from the broader internal
// observability events published on the hooks.Bus.
package stream

import (
	"context"
)

// EventType names one of the ten wire event kinds spec.md §4.9 defines.
type EventType string

const (
	EventAgentStart     EventType = "agent_start"
	EventAgentChange    EventType = "agent_change"
	EventRouterDecision EventType = "router_decision"
	EventToken          EventType = "token"
	EventLLMEnd         EventType = "llm_end"
	EventToolStart      EventType = "tool_start"
	EventToolEnd        EventType = "tool_end"
	EventInterrupt      EventType = "interrupt"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is a single streaming update delivered through a Sink. Concrete
// payload types below all implement Event.
type Event interface {
	// Type returns the wire event kind.
	Type() EventType
	// ThreadID returns the conversation thread this event belongs to.
	ThreadID() string
	// Payload returns the JSON-serializable event body (everything but Type,
	// which the Gateway embeds alongside it per spec.md §6.1's envelope).
	Payload() any
}

type base struct {
	thread string
}

func (b base) ThreadID() string { return b.thread }

// AgentStart is emitted at request start or after the first node yields an
// agent identity.
type AgentStart struct {
	base
	CurrentAgent string `json:"current_agent"`
}

func NewAgentStart(threadID, currentAgent string) AgentStart {
	return AgentStart{base: base{threadID}, CurrentAgent: currentAgent}
}
func (e AgentStart) Type() EventType { return EventAgentStart }
func (e AgentStart) Payload() any    { return e }

// AgentChange is emitted on every transition into a different agent node.
type AgentChange struct {
	base
	CurrentAgent string `json:"current_agent"`
}

func NewAgentChange(threadID, currentAgent string) AgentChange {
	return AgentChange{base: base{threadID}, CurrentAgent: currentAgent}
}
func (e AgentChange) Type() EventType { return EventAgentChange }
func (e AgentChange) Payload() any    { return e }

// RouterDecision is emitted exactly once when the Router Node yields.
type RouterDecision struct {
	base
	TargetAgent string `json:"target_agent"`
	Reason      string `json:"reason"`
}

func NewRouterDecision(threadID, targetAgent, reason string) RouterDecision {
	return RouterDecision{base: base{threadID}, TargetAgent: targetAgent, Reason: reason}
}
func (e RouterDecision) Type() EventType { return EventRouterDecision }
func (e RouterDecision) Payload() any    { return e }

// Token streams one incremental LLM token for an agent node. Router LLM
// tokens are never wrapped in this event (spec.md §4.9).
type Token struct {
	base
	Content      string `json:"content"`
	CurrentAgent string `json:"current_agent"`
}

func NewToken(threadID, content, currentAgent string) Token {
	return Token{base: base{threadID}, Content: content, CurrentAgent: currentAgent}
}
func (e Token) Type() EventType { return EventToken }
func (e Token) Payload() any    { return e }

// LLMEnd is emitted at the end of an LLM call for an agent node (suppressed
// for the router).
type LLMEnd struct {
	base
	FullMessage string `json:"full_message"`
	Node        string `json:"node"`
}

func NewLLMEnd(threadID, fullMessage, node string) LLMEnd {
	return LLMEnd{base: base{threadID}, FullMessage: fullMessage, Node: node}
}
func (e LLMEnd) Type() EventType { return EventLLMEnd }
func (e LLMEnd) Payload() any    { return e }

// ToolStart is emitted before a tool is invoked, after any approval gate has
// passed.
type ToolStart struct {
	base
	ToolName  string `json:"tool_name"`
	ToolInput string `json:"tool_input"`
	Node      string `json:"node"`
}

func NewToolStart(threadID, toolName, toolInput, node string) ToolStart {
	return ToolStart{base: base{threadID}, ToolName: toolName, ToolInput: toolInput, Node: node}
}
func (e ToolStart) Type() EventType { return EventToolStart }
func (e ToolStart) Payload() any    { return e }

// ToolEnd is emitted after a tool returns.
type ToolEnd struct {
	base
	ToolName   string `json:"tool_name"`
	ToolOutput string `json:"tool_output"`
	Node       string `json:"node"`
}

func NewToolEnd(threadID, toolName, toolOutput, node string) ToolEnd {
	return ToolEnd{base: base{threadID}, ToolName: toolName, ToolOutput: toolOutput, Node: node}
}
func (e ToolEnd) Type() EventType { return EventToolEnd }
func (e ToolEnd) Payload() any    { return e }

// Interrupt is emitted when Approval Middleware suspends execution.
type Interrupt struct {
	base
	InterruptRecord any    `json:"interrupt_record"`
	ThreadIDField   string `json:"thread_id"`
}

func NewInterrupt(threadID string, record any) Interrupt {
	return Interrupt{base: base{threadID}, InterruptRecord: record, ThreadIDField: threadID}
}
func (e Interrupt) Type() EventType { return EventInterrupt }
func (e Interrupt) Payload() any    { return e }

// Done is emitted at normal completion of a request.
type Done struct {
	base
	MessagesCount int    `json:"messages_count"`
	CurrentAgent  string `json:"current_agent"`
	HandoffCount  int    `json:"handoff_count"`
}

func NewDone(threadID string, messagesCount int, currentAgent string, handoffCount int) Done {
	return Done{base: base{threadID}, MessagesCount: messagesCount, CurrentAgent: currentAgent, HandoffCount: handoffCount}
}
func (e Done) Type() EventType { return EventDone }
func (e Done) Payload() any    { return e }

// ErrorEvent is emitted on any surfaced failure.
type ErrorEvent struct {
	base
	Error     string `json:"error"`
	Traceback string `json:"traceback,omitempty"`
}

func NewError(threadID string, err error, traceback string) ErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{base: base{threadID}, Error: msg, Traceback: traceback}
}
func (e ErrorEvent) Type() EventType { return EventError }
func (e ErrorEvent) Payload() any    { return e }

// Sink delivers Events to clients over a transport (SSE, WebSocket).
// Implementations must be safe for concurrent Send calls: a run may stream
// tokens and tool events interleaved in real time.
type Sink interface {
	// Send publishes event to the sink's underlying transport.
	Send(ctx context.Context, event Event) error
	// Close releases resources owned by the sink. Idempotent.
	Close(ctx context.Context) error
}
