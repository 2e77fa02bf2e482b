// Package llm defines the Provider interface consumed by the Router Node
// and Agent Node (spec.md §6.2): a streaming chat-completion call that may
// yield tokens, tool calls, and a terminal full message, plus an optional
// structured-output constraint used for routing classification.
package llm

import (
	"context"
	"encoding/json"

	"github.com/hhyun1051/teamh-orchestrator/message"
)

// ChunkKind discriminates the variants of a streamed chat response.
type ChunkKind string

const (
	ChunkToken    ChunkKind = "token"
	ChunkToolCall ChunkKind = "tool_call"
	ChunkEnd      ChunkKind = "end"
)

// Chunk is one element of a Provider's streamed response. Exactly one of
// Token, ToolCall, or End is meaningful, selected by Kind.
type Chunk struct {
	Kind ChunkKind

	// Token holds incremental assistant text when Kind == ChunkToken.
	Token string

	// ToolCall holds one requested tool invocation when Kind == ChunkToolCall.
	ToolCall message.ToolCall

	// End holds the full accumulated response when Kind == ChunkEnd; this is
	// the final chunk of every stream.
	End Response
}

// Response is the fully materialized result of a stream_chat call, surfaced
// in the terminal ChunkEnd chunk (and returned directly by implementations
// that don't support incremental streaming).
type Response struct {
	// Content is the assistant's text content, empty if the turn produced
	// only tool calls.
	Content string
	// ToolCalls are the tool invocations the model requested, in order.
	ToolCalls []message.ToolCall
	// Structured holds the raw JSON payload when StructuredSchema was
	// requested and the provider supports native structured output;
	// otherwise nil and callers fall back to parsing Content.
	Structured json.RawMessage
}

// ToolOffer describes one tool made available to the model for this call.
type ToolOffer struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ChatRequest bundles a stream_chat call's inputs.
type ChatRequest struct {
	Messages []message.Message
	Tools    []ToolOffer
	// StructuredSchema, when set, asks the provider to constrain its
	// response to this JSON Schema (used by the Router Node's
	// classification call per spec.md §6.2).
	StructuredSchema json.RawMessage
	// Model and Temperature override the process-wide defaults
	// (spec.md §6.5) for this call; empty/zero means "use the default".
	Model       string
	Temperature *float64
}

// Provider is the LLM backend abstraction consumed by the runtime
// (spec.md §6.2). Implementations must support incremental token streaming
// and a tool-call protocol; structured output is optional (the caller falls
// back to JSON-parsing a constrained prompt when Structured comes back nil).
type Provider interface {
	// StreamChat sends req and calls onChunk for every Chunk as it is
	// produced, finishing with exactly one ChunkEnd chunk. StreamChat
	// returns once the terminal chunk has been delivered or ctx is
	// canceled.
	StreamChat(ctx context.Context, req ChatRequest, onChunk func(Chunk) error) error
}
