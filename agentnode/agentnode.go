// Package agentnode implements the Agent Node (spec.md §4.5, C5): one
// graph node wrapping an LLM provider, a scoped tool registry, and the
// Approval Middleware in a bounded plan/execute inner loop.
package agentnode

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/state"
	"github.com/hhyun1051/teamh-orchestrator/stream"
	"github.com/hhyun1051/teamh-orchestrator/telemetry"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

// DefaultMaxIterations bounds the inner loop when a Node does not set
// MaxIterations explicitly (spec.md §4.5: "default 25; memory agent uses 20
// in the source").
const DefaultMaxIterations = 25

// ErrIterationLimitExceeded is returned when a Node's inner loop runs
// MaxIterations plan/execute rounds without the LLM producing a terminal
// assistant message.
var ErrIterationLimitExceeded = errors.New("agentnode: iteration limit exceeded")

// Node is one Agent Node (spec.md §4.5): a named LLM-backed worker scoped to
// a subset of the Tool Registry, optionally gated by Approval Middleware.
type Node struct {
	// Name identifies this node as a routing target (e.g. "manager_i").
	Name string
	// SystemPrompt, if non-empty, is prepended to every call as a System
	// message.
	SystemPrompt string
	// Provider is the LLM backend this node calls.
	Provider llm.Provider
	// Toolset lists the tool names offered to the model on every call, a
	// subset of the process-wide Registry (spec.md §4.3).
	Toolset []string
	Registry *tools.Registry
	// Approval gates tool calls the Registry marks RequiresApproval; nil
	// means no tool offered by this node ever requires approval.
	Approval *approval.Middleware
	// MaxIterations bounds the inner loop; <= 0 uses DefaultMaxIterations.
	MaxIterations int
	// Telemetry carries the node's Logger/Metrics/Tracer; the zero value is
	// replaced with telemetry.NoOp() on first use.
	Telemetry telemetry.Bundle
	// SummarizeAfterTokens, when positive, bounds the message log Run sends to
	// the LLM: once the working log's estimated token count exceeds this
	// threshold, Summarizer (if set) condenses it before the next LLM call
	// (spec.md §5, manager_d's history-summarization step).
	SummarizeAfterTokens int
	// Summarizer condenses a message log that has grown past
	// SummarizeAfterTokens. A nil Summarizer disables summarization
	// regardless of SummarizeAfterTokens.
	Summarizer Summarizer
}

// Summarizer condenses a message log into a shorter one — typically a single
// system message summarizing the turns it replaces — grounded on the
// teacher's reminder package's run-start injection mechanic, repurposed here
// to shrink the log instead of only annotating it.
type Summarizer func(ctx context.Context, log message.Log) (message.Log, error)

// estimatedTokens approximates a message log's token count at roughly four
// characters per token, a rough but dependency-free heuristic adequate for
// deciding when to summarize (an over- or under-estimate by a constant
// factor only shifts the threshold, it never breaks the mechanism).
func estimatedTokens(log message.Log) int {
	chars := 0
	for _, m := range log.All() {
		chars += len(m.Content)
	}
	return chars / 4
}

func (n *Node) maxIterations() int {
	if n.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return n.MaxIterations
}

func (n *Node) bundle() telemetry.Bundle {
	if n.Telemetry.Logger == nil && n.Telemetry.Metrics == nil && n.Telemetry.Tracer == nil {
		return telemetry.NoOp()
	}
	return n.Telemetry
}

// Run executes this node's bounded inner loop against conv (spec.md §4.5):
//
//  1. Send the message log to the LLM provider.
//  2. If the LLM returns a terminal assistant message, append it and stop.
//  3. If it returns tool calls, split them via Approval Middleware; calls
//     needing a human decision suspend the loop and Run returns a non-nil
//     Interrupt alongside the Update built so far (including the assistant
//     message that carried the calls).
//  4. Otherwise invoke every call, append the resulting Tool messages, and
//     loop back to step 1.
//
// sink receives this call's token/tool/llm_end events; it is supplied
// per-request (an agent's Node is shared across concurrently running
// threads, but its stream destination is not), and may be nil to disable
// streaming.
//
// Run never mutates conv; it returns a state.Update for the caller (the
// Graph Executor) to merge via state.Merge.
func (n *Node) Run(ctx context.Context, conv state.Conversation, sink stream.Sink) (state.Update, *checkpoint.Interrupt, error) {
	bundle := n.bundle()
	ctx, span := bundle.Tracer.Start(ctx, "agentnode.run", trace.WithAttributes())
	defer span.End()

	update := state.Update{CurrentAgent: n.Name}
	working := conv.Messages
	threadID := conv.ThreadID

	// conv.CurrentAgent still holds whatever agent was active before this
	// call: empty on a thread's very first node (spec.md §4.9 testable
	// property 7, "router_decision precedes the first agent_start"), equal to
	// n.Name when Resume hands the same suspended agent its decisions back
	// (not a transition), and some other agent's id on an actual handoff.
	switch {
	case conv.CurrentAgent == "":
		emit(ctx, sink, stream.NewAgentStart(threadID, n.Name))
	case conv.CurrentAgent != n.Name:
		emit(ctx, sink, stream.NewAgentChange(threadID, n.Name))
	}

	for iteration := 0; ; iteration++ {
		if iteration >= n.maxIterations() {
			span.SetStatus(codes.Error, "iteration limit exceeded")
			return update, nil, fmt.Errorf("%w: node %q after %d iterations", ErrIterationLimitExceeded, n.Name, iteration)
		}

		if n.Summarizer != nil && n.SummarizeAfterTokens > 0 && estimatedTokens(working) > n.SummarizeAfterTokens {
			summarized, err := n.Summarizer(ctx, working)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "summarization failed")
				return update, nil, fmt.Errorf("agentnode %q: summarize history: %w", n.Name, err)
			}
			working = summarized
			bundle.Logger.Info(ctx, "agent node summarized history", "node", n.Name, "tokens_before", estimatedTokens(conv.Messages))
		}

		resp, err := n.callLLM(ctx, threadID, working, sink)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "llm call failed")
			return update, nil, fmt.Errorf("agentnode %q: llm call: %w", n.Name, err)
		}
		emit(ctx, sink, stream.NewLLMEnd(threadID, resp.Content, n.Name))

		if len(resp.ToolCalls) == 0 {
			assistantMsg := message.NewAssistant(resp.Content)
			update.NewMessages = append(update.NewMessages, assistantMsg)
			span.SetStatus(codes.Ok, "ok")
			return update, nil, nil
		}

		assistantMsg := message.NewAssistantToolCalls(resp.Content, resp.ToolCalls)
		update.NewMessages = append(update.NewMessages, assistantMsg)
		working.Append(assistantMsg)

		toExecute, interrupt, err := n.split(ctx, resp.ToolCalls)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "approval split failed")
			return update, nil, fmt.Errorf("agentnode %q: approval split: %w", n.Name, err)
		}
		if interrupt != nil {
			bundle.Logger.Info(ctx, "agent node suspended pending approval", "node", n.Name, "pending", len(interrupt.Actions))
			emit(ctx, sink, stream.NewInterrupt(threadID, interrupt))
			return update, interrupt, nil
		}

		toolMsgs, metadata, err := n.executeAll(ctx, threadID, toExecute, sink)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool execution failed")
			return update, nil, fmt.Errorf("agentnode %q: tool execution: %w", n.Name, err)
		}
		update.NewMessages = append(update.NewMessages, toolMsgs...)
		update.Metadata = mergeMetadata(update.Metadata, metadata)
		working.Append(toolMsgs...)
	}
}

func (n *Node) callLLM(ctx context.Context, threadID string, log message.Log, sink stream.Sink) (llm.Response, error) {
	msgs := log.All()
	if n.SystemPrompt != "" {
		msgs = append([]message.Message{message.NewSystem(n.SystemPrompt)}, msgs...)
	}

	req := llm.ChatRequest{
		Messages: msgs,
		Tools:    n.toolOffers(),
	}

	var final llm.Response
	err := n.Provider.StreamChat(ctx, req, func(chunk llm.Chunk) error {
		switch chunk.Kind {
		case llm.ChunkToken:
			emit(ctx, sink, stream.NewToken(threadID, chunk.Token, n.Name))
		case llm.ChunkEnd:
			final = chunk.End
		}
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}
	return final, nil
}

func (n *Node) toolOffers() []llm.ToolOffer {
	if n.Registry == nil {
		return nil
	}
	specs := n.Registry.Subset(n.Toolset)
	offers := make([]llm.ToolOffer, 0, len(specs))
	for _, s := range specs {
		offers = append(offers, llm.ToolOffer{Name: s.Name, Description: s.Description, Schema: s.Schema})
	}
	return offers
}

func (n *Node) split(ctx context.Context, calls []message.ToolCall) ([]message.ToolCall, *checkpoint.Interrupt, error) {
	if n.Approval == nil {
		return calls, nil, nil
	}
	return n.Approval.Split(ctx, calls)
}

func (n *Node) executeAll(ctx context.Context, threadID string, calls []message.ToolCall, sink stream.Sink) ([]message.Message, map[string]string, error) {
	bundle := n.bundle()
	results := make([]message.Message, 0, len(calls))
	var metadata map[string]string
	for _, call := range calls {
		emit(ctx, sink, stream.NewToolStart(threadID, call.Name, string(call.Arguments), n.Name))

		spanCtx, span := bundle.Tracer.Start(ctx, "agentnode.tool_call", trace.WithSpanKind(trace.SpanKindInternal))
		out, err := n.Registry.Invoke(spanCtx, call.Name, call.Arguments)
		var resultMsg message.Message
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool call failed")
			resultMsg = message.NewTool(call.ID, call.Name, err.Error())
		} else {
			span.SetStatus(codes.Ok, "ok")
			text, toolMetadata := toolResult(out)
			resultMsg = message.NewTool(call.ID, call.Name, text)
			metadata = mergeMetadata(metadata, toolMetadata)
		}
		span.End()

		emit(ctx, sink, stream.NewToolEnd(threadID, call.Name, resultMsg.Content, n.Name))
		results = append(results, resultMsg)
	}
	return results, metadata, nil
}

// toolResult splits a Handler's result into its Tool-message text and any
// thread-scoped scratch metadata it carries (tools.MetadataResult).
func toolResult(out any) (string, map[string]string) {
	if mr, ok := out.(tools.MetadataResult); ok {
		return mr.Text, mr.Metadata
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", out), nil
}

// mergeMetadata overlays addition onto base, allocating base on first write.
func mergeMetadata(base, addition map[string]string) map[string]string {
	if len(addition) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]string, len(addition))
	}
	for k, v := range addition {
		base[k] = v
	}
	return base
}

func emit(ctx context.Context, sink stream.Sink, event stream.Event) {
	if sink == nil {
		return
	}
	_ = sink.Send(ctx, event)
}
