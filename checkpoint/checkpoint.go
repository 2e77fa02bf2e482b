// Package checkpoint persists versioned snapshots of Conversation State keyed
// by thread id (spec.md §4.1). Implementations must serialize concurrent
// saves for a given thread id so the message log never forks.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/hhyun1051/teamh-orchestrator/state"
)

// ErrNotFound indicates no checkpoint exists for the requested thread id (or
// version).
var ErrNotFound = errors.New("checkpoint: not found")

// Interrupt captures the record emitted when Approval Middleware suspends
// execution (spec.md §3 "Interrupt Record"). A Checkpoint with a non-nil
// Interrupt represents a paused run awaiting a resume request.
type Interrupt struct {
	// Actions enumerates the pending tool calls awaiting a decision, in the
	// order they must be answered on resume.
	Actions []ActionRequest
}

// ActionRequest echoes a pending tool call plus a human-readable description
// and the decision kinds an operator may apply to it.
type ActionRequest struct {
	ToolCallID  string
	ToolName    string
	Arguments   []byte
	Description string
	// Allowed lists the decision kinds permitted for this action (defaults to
	// {Approve, Reject} per spec.md §4.4 step 2).
	Allowed []DecisionKind
}

// DecisionKind enumerates the shapes a Tool Decision may take.
type DecisionKind string

const (
	// DecisionApprove executes the tool call unchanged.
	DecisionApprove DecisionKind = "approve"
	// DecisionReject synthesizes a refusal Tool message instead of invoking the tool.
	DecisionReject DecisionKind = "reject"
	// DecisionEdit invokes the tool with an edited name/arguments.
	DecisionEdit DecisionKind = "edit"
)

// Checkpoint is an immutable snapshot of a thread's Conversation State,
// optionally paired with a pending Interrupt (spec.md §3 "Checkpoint").
type Checkpoint struct {
	ThreadID  string
	ParentID  string
	State     state.Conversation
	Interrupt *Interrupt
	// Version is strictly greater than the parent checkpoint's version.
	Version int64
	// ID is the durable identifier of this particular checkpoint snapshot; it
	// is distinct from Version (which orders snapshots for one thread) so a
	// suspended checkpoint can be addressed directly on resume.
	ID        string
	CreatedAt time.Time
}

// Store persists and retrieves Checkpoints (spec.md §4.1, C1).
//
// Save must be atomic with respect to a given thread id: concurrent Save
// calls for the same thread id must serialize so the message log never
// forks. The version returned by Save is strictly greater than the version of
// the checkpoint it supersedes.
type Store interface {
	// Save persists cp as the new latest checkpoint for cp.ThreadID and
	// returns the assigned version. Save failing is fatal to the in-flight
	// request (spec.md §4.1): implementations must not leave partial state
	// observable via LoadLatest after a failed Save.
	Save(ctx context.Context, cp Checkpoint) (version int64, err error)

	// LoadLatest returns the most recently saved checkpoint for threadID, or
	// ErrNotFound if none exists.
	LoadLatest(ctx context.Context, threadID string) (Checkpoint, error)

	// LoadAt returns the checkpoint at the given version for threadID, or
	// ErrNotFound if no such version exists. Implementations are only
	// required to retain the latest version; older versions may return
	// ErrNotFound.
	LoadAt(ctx context.Context, threadID string, version int64) (Checkpoint, error)
}
