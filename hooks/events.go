package hooks

import "github.com/hhyun1051/teamh-orchestrator/state"

// EventType names an internal lifecycle event published on a Bus. This
// taxonomy is a superset of the client-facing stream taxonomy: it also
// carries events persistence subscribers care about (checkpoint saved) that
// are never forwarded to a client.
type EventType string

const (
	CheckpointSaved   EventType = "checkpoint_saved"
	NodeEntered       EventType = "node_entered"
	HandoffDetected   EventType = "handoff_detected"
	HandoffCapped     EventType = "handoff_capped"
	ToolCallScheduled EventType = "tool_call_scheduled"
	ToolResultReady   EventType = "tool_result_ready"
	RunSuspended      EventType = "run_suspended"
	RunResumed        EventType = "run_resumed"
	RunCompleted      EventType = "run_completed"
	RunFailed         EventType = "run_failed"
)

// Event is a single internal lifecycle event.
type Event struct {
	Type     EventType
	ThreadID string
	Payload  any
}

// CheckpointSavedPayload accompanies CheckpointSaved.
type CheckpointSavedPayload struct {
	Version int64
	State   state.Conversation
}

// NodeEnteredPayload accompanies NodeEntered.
type NodeEnteredPayload struct {
	NodeID string
}

// HandoffDetectedPayload accompanies HandoffDetected.
type HandoffDetectedPayload struct {
	FromAgent string
	ToAgent   string
}

// HandoffCappedPayload accompanies HandoffCapped, published when a detected
// handoff is suppressed by loop-prevention policy (spec.md §4.8).
type HandoffCappedPayload struct {
	FromAgent    string
	ToAgent      string
	HandoffCount int
	MaxHandoffs  int
}

// ToolCallScheduledPayload accompanies ToolCallScheduled.
type ToolCallScheduledPayload struct {
	ToolCallID string
	ToolName   string
	Node       string
}

// ToolResultReadyPayload accompanies ToolResultReady.
type ToolResultReadyPayload struct {
	ToolCallID string
	ToolName   string
	Node       string
	Output     string
	Err        error
}

// RunSuspendedPayload accompanies RunSuspended.
type RunSuspendedPayload struct {
	Actions []string
}

// RunCompletedPayload accompanies RunCompleted.
type RunCompletedPayload struct {
	MessagesCount int
	CurrentAgent  string
	HandoffCount  int
}

// RunFailedPayload accompanies RunFailed.
type RunFailedPayload struct {
	Err error
}
