// Package state defines Conversation State (spec.md §3), the single durable
// record per thread id, and the deterministic reducer (spec.md §4.2) that
// folds a node's partial update into it.
package state

import "github.com/hhyun1051/teamh-orchestrator/message"

// NextStep names what the Graph Executor should invoke next. It is either a
// concrete agent identifier, End, or Router.
type NextStep string

const (
	// End is the sentinel meaning the run has terminated for this turn.
	End NextStep = "END"
	// Router is the sentinel meaning control returns to the Router Node.
	Router NextStep = "ROUTER"
)

// DefaultMaxHandoffs is the default cap on inter-agent transfers per request
// (spec.md §3, §6.5).
const DefaultMaxHandoffs = 5

// Conversation is the one-per-thread-id state described in spec.md §3.
// Conversation is copied by value at node boundaries; the reducer is the only
// code path permitted to construct a new one from an old one plus an update.
type Conversation struct {
	// ThreadID identifies the conversation this state belongs to.
	ThreadID string
	// Messages is the append-only message log.
	Messages message.Log
	// CurrentAgent is the identifier of the most recently executing agent, or
	// empty if no agent has run yet.
	CurrentAgent string
	// LastActiveManager is the agent identifier reused on the next turn via
	// sticky routing (spec.md §4.6).
	LastActiveManager string
	// RoutingReason is a short human-readable string surfaced for
	// observability (router_decision events).
	RoutingReason string
	// HandoffCount is incremented on every inter-agent transfer and reset per
	// user request. Invariant: HandoffCount <= MaxHandoffs.
	HandoffCount int
	// MaxHandoffs caps HandoffCount; 0 means DefaultMaxHandoffs applies.
	MaxHandoffs int
	// NextStep names the node the executor should invoke next.
	NextStep NextStep
	// Metadata holds small structured scratch fields scoped to this thread
	// (spec.md §5: manager_d's todo list, manager_m's goal/progress tracking)
	// that ride along with the checkpoint rather than living in a second
	// store. Keys are tool-defined; values are JSON-encoded by the tool that
	// owns them.
	Metadata map[string]string
}

// EffectiveMaxHandoffs returns MaxHandoffs, substituting DefaultMaxHandoffs
// when unset.
func (c Conversation) EffectiveMaxHandoffs() int {
	if c.MaxHandoffs <= 0 {
		return DefaultMaxHandoffs
	}
	return c.MaxHandoffs
}

// NewConversation starts a fresh Conversation for a new thread id, seeded with
// the incoming user message and routed to the Router node per spec.md §4.8
// step 1.
func NewConversation(threadID string, userMessage message.Message) Conversation {
	c := Conversation{ThreadID: threadID, NextStep: Router}
	c.Messages.Append(userMessage)
	return c
}

// Update is a node's partial contribution to Conversation state. Only
// non-zero-value fields are meant to be set; the reducer overwrites scalar
// fields present in Update and appends NewMessages to the log.
//
// Fields use pointers/explicit presence where "unset" must be distinguishable
// from the zero value (e.g. HandoffCountDelta of 0 is a legitimate no-op, so it
// is a plain int rather than a pointer: nodes that don't touch handoff count
// simply leave it at 0).
type Update struct {
	// NewMessages are appended to the log in order; never reordered or
	// deduplicated (spec.md §4.2).
	NewMessages []message.Message
	// CurrentAgent, if non-empty, overwrites Conversation.CurrentAgent.
	CurrentAgent string
	// LastActiveManager, if non-empty, overwrites Conversation.LastActiveManager.
	LastActiveManager string
	// RoutingReason, if non-empty, overwrites Conversation.RoutingReason.
	RoutingReason string
	// HandoffCountDelta is added to Conversation.HandoffCount.
	HandoffCountDelta int
	// ResetHandoffCount, when true, sets HandoffCount to 0 before applying
	// HandoffCountDelta (used at the start of a new user request).
	ResetHandoffCount bool
	// NextStep, if non-empty, overwrites Conversation.NextStep.
	NextStep NextStep
	// Metadata keys are set (added or overwritten) on Conversation.Metadata;
	// absent keys are left untouched.
	Metadata map[string]string
}

// Merge applies u to existing and returns the resulting Conversation. Merge is
// deterministic and side-effect-free (spec.md §4.2 contract, §8 law 2): it
// depends only on its two arguments, never on ambient time, randomness, or I/O.
//
// existing is never mutated: Merge takes Conversation by value and returns a
// new one.
func Merge(existing Conversation, u Update) Conversation {
	next := existing
	if len(u.NewMessages) > 0 {
		next.Messages.Append(u.NewMessages...)
	}
	if u.CurrentAgent != "" {
		next.CurrentAgent = u.CurrentAgent
	}
	if u.LastActiveManager != "" {
		next.LastActiveManager = u.LastActiveManager
	}
	if u.RoutingReason != "" {
		next.RoutingReason = u.RoutingReason
	}
	if u.ResetHandoffCount {
		next.HandoffCount = 0
	}
	next.HandoffCount += u.HandoffCountDelta
	if u.NextStep != "" {
		next.NextStep = u.NextStep
	}
	if len(u.Metadata) > 0 {
		merged := make(map[string]string, len(next.Metadata)+len(u.Metadata))
		for k, v := range next.Metadata {
			merged[k] = v
		}
		for k, v := range u.Metadata {
			merged[k] = v
		}
		next.Metadata = merged
	}
	return next
}

// MergePartials combines two partial Updates into one equivalent to applying
// u1 then u2, satisfying the associativity law in spec.md §8 law 2
// (merge(merge(S,P1),P2) == merge(S, MergePartials(P1,P2))): list fields
// concatenate, scalar fields use "last write wins" (u2 overrides u1).
func MergePartials(u1, u2 Update) Update {
	out := u1
	out.NewMessages = append(append([]message.Message{}, u1.NewMessages...), u2.NewMessages...)
	if u2.CurrentAgent != "" {
		out.CurrentAgent = u2.CurrentAgent
	}
	if u2.LastActiveManager != "" {
		out.LastActiveManager = u2.LastActiveManager
	}
	if u2.RoutingReason != "" {
		out.RoutingReason = u2.RoutingReason
	}
	if u2.ResetHandoffCount {
		out.ResetHandoffCount = true
		out.HandoffCountDelta = u2.HandoffCountDelta
	} else {
		out.HandoffCountDelta = u1.HandoffCountDelta + u2.HandoffCountDelta
	}
	if u2.NextStep != "" {
		out.NextStep = u2.NextStep
	}
	if len(u1.Metadata) > 0 || len(u2.Metadata) > 0 {
		merged := make(map[string]string, len(u1.Metadata)+len(u2.Metadata))
		for k, v := range u1.Metadata {
			merged[k] = v
		}
		for k, v := range u2.Metadata {
			merged[k] = v
		}
		out.Metadata = merged
	}
	return out
}
