// Package executor implements the Graph Executor (spec.md §4.8, C8): the
// top-level loop that drives transitions between the Router Node, Agent
// Nodes, and the Handoff Detector, applying the Conversation State reducer
// and persisting a checkpoint after every transition.
//
// There is no durable-workflow engine underneath this loop (unlike the
// teacher's Temporal-backed runtime): a Graph is a plain state machine
// walking the current in-memory Conversation State one node at a time,
// checkpointing to the Store as it goes so the walk can be resumed cold from
// any suspension point.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/handoffdetect"
	"github.com/hhyun1051/teamh-orchestrator/hooks"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/router"
	"github.com/hhyun1051/teamh-orchestrator/runtimectx"
	"github.com/hhyun1051/teamh-orchestrator/state"
	"github.com/hhyun1051/teamh-orchestrator/stream"
	"github.com/hhyun1051/teamh-orchestrator/telemetry"
)

// ErrPendingInterrupt is returned by StartTurn when the thread already has a
// suspended run awaiting a resume request.
var ErrPendingInterrupt = errors.New("executor: thread has a pending interrupt; resume before starting a new turn")

// ErrNoPendingInterrupt is returned by Resume when the thread's latest
// checkpoint carries no Interrupt to resolve.
var ErrNoPendingInterrupt = errors.New("executor: no pending interrupt for this thread")

// Graph wires together every component the executor drives: the checkpoint
// store, the Router Node, the registered Agent Nodes (keyed by the agent
// identifiers the Handoff Detector and Router Node may name), and the
// observability Bus. A Graph is constructed once per process and is safe for
// concurrent use across threads — every method takes the per-request
// runtimectx.RunContext and stream.Sink explicitly rather than storing them.
type Graph struct {
	Store     checkpoint.Store
	Router    *router.Node
	Agents    map[string]*agentnode.Node
	Hooks     hooks.Bus
	Telemetry telemetry.Bundle
}

// Result is returned by StartTurn and Resume: the Conversation State as of
// the last persisted checkpoint, its version, and a non-nil Interrupt if the
// run suspended instead of completing.
type Result struct {
	State     state.Conversation
	Version   int64
	Interrupt *checkpoint.Interrupt
}

func (g *Graph) bundle() telemetry.Bundle {
	if g.Telemetry.Logger == nil && g.Telemetry.Metrics == nil && g.Telemetry.Tracer == nil {
		return telemetry.NoOp()
	}
	return g.Telemetry
}

// StartTurn begins or continues a thread with a new user message (spec.md
// §4.8 step 1): it loads the thread's latest checkpoint, or initializes a
// fresh Conversation State if none exists, appends userText as a User
// message, resets the handoff count, and routes to the Router Node. sink may
// be nil to disable streaming.
func (g *Graph) StartTurn(ctx context.Context, rc runtimectx.RunContext, userText string, sink stream.Sink) (Result, error) {
	rc = rc.WithUserIDDefault()
	ctx = runtimectx.NewContext(ctx, rc)

	cp, err := g.Store.LoadLatest(ctx, rc.ThreadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		conv := state.NewConversation(rc.ThreadID, message.NewUser(userText))
		return g.run(ctx, conv, sink)
	case err != nil:
		return Result{}, fmt.Errorf("executor: load checkpoint for thread %q: %w", rc.ThreadID, err)
	}

	if cp.Interrupt != nil {
		return Result{}, ErrPendingInterrupt
	}

	conv := state.Merge(cp.State, state.Update{
		NewMessages:       []message.Message{message.NewUser(userText)},
		ResetHandoffCount: true,
		NextStep:          state.Router,
	})
	return g.run(ctx, conv, sink)
}

// Resume continues a suspended thread with the operator's Tool Decisions
// (spec.md §4.8's resume path, §4.4): it loads the checkpoint carrying the
// pending Interrupt, folds decisions into tool invocations and/or synthesized
// refusal messages via the suspended agent's Approval Middleware, appends the
// resulting Tool messages, and continues the executor loop from the same
// agent node (so the LLM sees the tool results on its next turn).
func (g *Graph) Resume(ctx context.Context, rc runtimectx.RunContext, decisions []approval.Decision, sink stream.Sink) (Result, error) {
	rc = rc.WithUserIDDefault()
	ctx = runtimectx.NewContext(ctx, rc)

	cp, err := g.Store.LoadLatest(ctx, rc.ThreadID)
	if err != nil {
		return Result{}, fmt.Errorf("executor: load checkpoint for thread %q: %w", rc.ThreadID, err)
	}
	if cp.Interrupt == nil {
		return Result{}, ErrNoPendingInterrupt
	}

	node, ok := g.Agents[cp.State.CurrentAgent]
	if !ok {
		return Result{}, fmt.Errorf("executor: resume: unknown agent %q", cp.State.CurrentAgent)
	}
	if node.Approval == nil {
		return Result{}, fmt.Errorf("executor: resume: agent %q has no approval middleware to resolve against", cp.State.CurrentAgent)
	}

	toolMsgs, err := node.Approval.Resolve(ctx, cp.Interrupt.Actions, decisions, node.Registry.Invoke)
	if err != nil {
		return Result{}, fmt.Errorf("executor: resolving tool decisions: %w", err)
	}

	conv := state.Merge(cp.State, state.Update{
		NewMessages: toolMsgs,
		NextStep:    state.NextStep(cp.State.CurrentAgent),
	})

	if err := g.publish(ctx, hooks.Event{Type: hooks.RunResumed, ThreadID: rc.ThreadID}); err != nil {
		return Result{}, fmt.Errorf("executor: publishing run_resumed: %w", err)
	}

	return g.run(ctx, conv, sink)
}

// run drives the state machine from conv's current NextStep until it reaches
// state.End or a node suspends (spec.md §4.8 step 2).
func (g *Graph) run(ctx context.Context, conv state.Conversation, sink stream.Sink) (Result, error) {
	bundle := g.bundle()
	var lastVersion int64

	for conv.NextStep != state.End {
		if conv.NextStep == state.Router {
			upd, err := g.Router.Run(ctx, conv, sink)
			if err != nil {
				_ = g.publish(ctx, hooks.Event{Type: hooks.RunFailed, ThreadID: conv.ThreadID, Payload: hooks.RunFailedPayload{Err: err}})
				return Result{}, fmt.Errorf("executor: router: %w", err)
			}
			conv = state.Merge(conv, upd)

			version, err := g.checkpointAfterTransition(ctx, conv, nil)
			if err != nil {
				return Result{}, err
			}
			lastVersion = version

			if err := g.publish(ctx, hooks.Event{Type: hooks.NodeEntered, ThreadID: conv.ThreadID, Payload: hooks.NodeEnteredPayload{NodeID: string(conv.NextStep)}}); err != nil {
				return Result{}, fmt.Errorf("executor: publishing node_entered: %w", err)
			}
			continue
		}

		agentID := string(conv.NextStep)
		node, ok := g.Agents[agentID]
		if !ok {
			err := fmt.Errorf("executor: no agent registered for node %q", agentID)
			_ = g.publish(ctx, hooks.Event{Type: hooks.RunFailed, ThreadID: conv.ThreadID, Payload: hooks.RunFailedPayload{Err: err}})
			return Result{}, err
		}

		beforeCount := conv.Messages.Len()
		upd, interrupt, err := node.Run(ctx, conv, sink)
		if err != nil {
			_ = g.publish(ctx, hooks.Event{Type: hooks.RunFailed, ThreadID: conv.ThreadID, Payload: hooks.RunFailedPayload{Err: err}})
			return Result{}, fmt.Errorf("executor: agent %q: %w", agentID, err)
		}
		conv = state.Merge(conv, upd)

		if interrupt != nil {
			version, err := g.Store.Save(ctx, g.buildCheckpoint(conv, interrupt))
			if err != nil {
				return Result{}, fmt.Errorf("executor: saving interrupt checkpoint: %w", err)
			}
			actionNames := make([]string, 0, len(interrupt.Actions))
			for _, a := range interrupt.Actions {
				actionNames = append(actionNames, a.ToolName)
			}
			if err := g.publish(ctx, hooks.Event{Type: hooks.RunSuspended, ThreadID: conv.ThreadID, Payload: hooks.RunSuspendedPayload{Actions: actionNames}}); err != nil {
				return Result{}, fmt.Errorf("executor: publishing run_suspended: %w", err)
			}
			return Result{State: conv, Version: version, Interrupt: interrupt}, nil
		}

		next := g.decideNextStep(ctx, conv, agentID, beforeCount)
		conv = state.Merge(conv, next)

		version, err := g.checkpointAfterTransition(ctx, conv, nil)
		if err != nil {
			return Result{}, err
		}
		lastVersion = version

		if err := g.publish(ctx, hooks.Event{Type: hooks.NodeEntered, ThreadID: conv.ThreadID, Payload: hooks.NodeEnteredPayload{NodeID: string(conv.NextStep)}}); err != nil {
			return Result{}, fmt.Errorf("executor: publishing node_entered: %w", err)
		}
	}

	if err := g.publish(ctx, hooks.Event{
		Type:     hooks.RunCompleted,
		ThreadID: conv.ThreadID,
		Payload: hooks.RunCompletedPayload{
			MessagesCount: conv.Messages.Len(),
			CurrentAgent:  conv.CurrentAgent,
			HandoffCount:  conv.HandoffCount,
		},
	}); err != nil {
		return Result{}, fmt.Errorf("executor: publishing run_completed: %w", err)
	}

	bundle.Logger.Info(ctx, "run completed", "thread_id", conv.ThreadID, "current_agent", conv.CurrentAgent, "handoff_count", conv.HandoffCount)
	return Result{State: conv, Version: lastVersion}, nil
}

// decideNextStep applies the Handoff Detector and loop-prevention policy
// (spec.md §4.7, §4.8) to the messages agentID's node just appended, and
// returns the Update carrying the next NextStep plus the current_agent and
// last_active_manager bookkeeping spec.md §4.8 requires.
func (g *Graph) decideNextStep(ctx context.Context, conv state.Conversation, agentID string, beforeCount int) state.Update {
	bundle := g.bundle()
	newMessages := conv.Messages.Since(beforeCount)
	target, found := handoffdetect.Detect(newMessages)
	if found {
		if _, known := g.Agents[target]; !known {
			bundle.Logger.Warn(ctx, "handoff named an unregistered agent, ending run", "from", agentID, "target", target)
			found = false
		}
	}

	next := state.Update{CurrentAgent: agentID}
	switch {
	case found && conv.HandoffCount >= conv.EffectiveMaxHandoffs():
		_ = g.publish(ctx, hooks.Event{
			Type:     hooks.HandoffCapped,
			ThreadID: conv.ThreadID,
			Payload: hooks.HandoffCappedPayload{
				FromAgent:    agentID,
				ToAgent:      target,
				HandoffCount: conv.HandoffCount,
				MaxHandoffs:  conv.EffectiveMaxHandoffs(),
			},
		})
		next.NextStep = state.End
		next.LastActiveManager = agentID

	case found:
		_ = g.publish(ctx, hooks.Event{
			Type:     hooks.HandoffDetected,
			ThreadID: conv.ThreadID,
			Payload:  hooks.HandoffDetectedPayload{FromAgent: agentID, ToAgent: target},
		})
		next.NextStep = state.NextStep(target)
		next.HandoffCountDelta = 1
		next.LastActiveManager = target

	default:
		next.NextStep = state.End
		next.LastActiveManager = agentID
	}
	return next
}

func (g *Graph) checkpointAfterTransition(ctx context.Context, conv state.Conversation, interrupt *checkpoint.Interrupt) (int64, error) {
	version, err := g.Store.Save(ctx, g.buildCheckpoint(conv, interrupt))
	if err != nil {
		return 0, fmt.Errorf("executor: saving checkpoint for thread %q: %w", conv.ThreadID, err)
	}
	if err := g.publish(ctx, hooks.Event{
		Type:     hooks.CheckpointSaved,
		ThreadID: conv.ThreadID,
		Payload:  hooks.CheckpointSavedPayload{Version: version, State: conv},
	}); err != nil {
		return 0, fmt.Errorf("executor: publishing checkpoint_saved: %w", err)
	}
	return version, nil
}

func (g *Graph) buildCheckpoint(conv state.Conversation, interrupt *checkpoint.Interrupt) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		ThreadID:  conv.ThreadID,
		State:     conv,
		Interrupt: interrupt,
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

func (g *Graph) publish(ctx context.Context, event hooks.Event) error {
	if g.Hooks == nil {
		return nil
	}
	return g.Hooks.Publish(ctx, event)
}
