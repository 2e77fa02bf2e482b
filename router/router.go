// Package router implements the Router Node (spec.md §4.6, C6): on the
// first turn of a thread it classifies the request and selects a target
// agent; on later turns it reuses the last active agent without invoking
// the LLM (sticky routing, spec.md §8 law 4).
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/codes"

	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/state"
	"github.com/hhyun1051/teamh-orchestrator/stream"
	"github.com/hhyun1051/teamh-orchestrator/telemetry"
)

// StickyReason is the RoutingReason recorded when a request is routed
// without an LLM call because a last active manager already exists.
const StickyReason = "continuing with last active manager"

// decisionSchema constrains the classification call's structured output to
// spec.md §4.6's {target_agent, reason} shape.
var decisionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"target_agent": {"type": "string"},
		"reason": {"type": "string"}
	},
	"required": ["target_agent", "reason"],
	"additionalProperties": false
}`)

// decision is the classification call's result shape.
type decision struct {
	TargetAgent string `json:"target_agent"`
	Reason      string `json:"reason"`
}

// jsonObject extracts the first top-level JSON object substring from free
// text, the fallback parse path spec.md §4.6 allows when a provider does not
// support native structured output.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Node is the Router Node. AgentIDs enumerates the agents a classification
// decision may target; DefaultAgent is used when classification fails or
// names an agent outside AgentIDs, matching the teacher source's
// "default fallback" behavior.
type Node struct {
	Provider     llm.Provider
	SystemPrompt string
	AgentIDs     []string
	DefaultAgent string
	Telemetry    telemetry.Bundle
}

func (n *Node) bundle() telemetry.Bundle {
	if n.Telemetry.Logger == nil && n.Telemetry.Metrics == nil && n.Telemetry.Tracer == nil {
		return telemetry.NoOp()
	}
	return n.Telemetry
}

func (n *Node) allowed(agent string) bool {
	for _, id := range n.AgentIDs {
		if id == agent {
			return true
		}
	}
	return false
}

// Run decides the next node for conv (spec.md §4.6). It never appends
// messages to the log; it only sets NextStep and RoutingReason (and, on the
// sticky path, reuses LastActiveManager without an LLM call). sink receives
// the single router_decision event this call emits; it may be nil.
func (n *Node) Run(ctx context.Context, conv state.Conversation, sink stream.Sink) (state.Update, error) {
	bundle := n.bundle()
	ctx, span := bundle.Tracer.Start(ctx, "router.run")
	defer span.End()

	if conv.LastActiveManager != "" {
		emitDecision(ctx, sink, conv.ThreadID, conv.LastActiveManager, StickyReason)
		span.SetStatus(codes.Ok, "sticky")
		return state.Update{
			NextStep:      state.NextStep(conv.LastActiveManager),
			RoutingReason: StickyReason,
		}, nil
	}

	lastUser, ok := conv.Messages.LastUser()
	if !ok {
		span.SetStatus(codes.Error, "no user message")
		return state.Update{}, fmt.Errorf("router: no user message found in thread %q", conv.ThreadID)
	}

	dec, err := n.classify(ctx, conv.Messages.All(), lastUser)
	if err != nil {
		bundle.Logger.Warn(ctx, "router classification failed, using default agent", "error", err, "default_agent", n.DefaultAgent)
		dec = decision{TargetAgent: n.DefaultAgent, Reason: fmt.Sprintf("error fallback: %v", err)}
	}
	if !n.allowed(dec.TargetAgent) {
		bundle.Logger.Warn(ctx, "router selected unknown agent, using default agent", "target_agent", dec.TargetAgent, "default_agent", n.DefaultAgent)
		dec = decision{TargetAgent: n.DefaultAgent, Reason: "default fallback"}
	}

	emitDecision(ctx, sink, conv.ThreadID, dec.TargetAgent, dec.Reason)
	span.SetStatus(codes.Ok, "ok")
	return state.Update{
		NextStep:      state.NextStep(dec.TargetAgent),
		RoutingReason: dec.Reason,
	}, nil
}

func (n *Node) classify(ctx context.Context, log []message.Message, lastUser message.Message) (decision, error) {
	if n.Provider == nil {
		return decision{}, fmt.Errorf("router: no provider configured")
	}

	messages := make([]message.Message, 0, len(log)+1)
	if n.SystemPrompt != "" {
		messages = append(messages, message.NewSystem(n.SystemPrompt))
	}
	messages = append(messages, lastUser)

	req := llm.ChatRequest{
		Messages:         messages,
		StructuredSchema: decisionSchema,
	}

	var resp llm.Response
	err := n.Provider.StreamChat(ctx, req, func(chunk llm.Chunk) error {
		if chunk.Kind == llm.ChunkEnd {
			resp = chunk.End
		}
		return nil
	})
	if err != nil {
		return decision{}, fmt.Errorf("router: classification call: %w", err)
	}

	if len(resp.Structured) > 0 {
		var dec decision
		if err := json.Unmarshal(resp.Structured, &dec); err != nil {
			return decision{}, fmt.Errorf("router: decoding structured output: %w", err)
		}
		return dec, nil
	}

	match := jsonObject.FindString(resp.Content)
	if match == "" {
		return decision{}, fmt.Errorf("router: no structured output and no JSON object found in response")
	}
	var dec decision
	if err := json.Unmarshal([]byte(match), &dec); err != nil {
		return decision{}, fmt.Errorf("router: parsing fallback JSON: %w", err)
	}
	return dec, nil
}

func emitDecision(ctx context.Context, sink stream.Sink, threadID, targetAgent, reason string) {
	if sink == nil {
		return
	}
	_ = sink.Send(ctx, stream.NewRouterDecision(threadID, targetAgent, reason))
}
