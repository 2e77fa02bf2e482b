package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

const dSystemPrompt = "You are the delegator. Requests spanning several domains " +
	"come to you first: break them into steps, track them with track_todo, and " +
	"hand off each step to the manager that owns it (IoT control, memory, " +
	"search, or calendar)."

// buildManagerD wires the delegator (original_source/agents/manager_d.py):
// unlike the other managers, the Python original defines no custom tools of
// its own (its _create_tools returns []), relying entirely on
// TodoListMiddleware/FilesystemMiddleware/SummarizationMiddleware. Those
// middlewares have no direct library equivalent in this stack, so track_todo
// reimplements TodoListMiddleware's scratch-list behavior via
// tools.MetadataResult, and the history-summarization step reimplements
// SummarizationMiddleware as an agentnode.Summarizer.
func buildManagerD(p BuildParams, existing map[string]*agentnode.Node) (*agentnode.Node, error) {
	todoSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {"type": "string"}
			}
		},
		"required": ["items"],
		"additionalProperties": false
	}`)

	specs := []tools.Spec{
		{
			Name:        "track_todo",
			Description: "Record the current step-by-step plan for a multi-step request.",
			Schema:      todoSchema,
			Handler:     trackTodoHandler(),
		},
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := p.Registry.Register(spec); err != nil {
			return nil, fmt.Errorf("agents: register manager_d tool %q: %w", spec.Name, err)
		}
		names = append(names, spec.Name)
	}

	node := &agentnode.Node{
		Name:         Delegator,
		SystemPrompt: dSystemPrompt,
		Provider:     p.Provider,
		Toolset:      names,
		Registry:     p.Registry,
		Approval:     p.Approval,
		Telemetry:    p.Telemetry,
	}
	if p.SummarizeAfterTokens > 0 {
		node.SummarizeAfterTokens = p.SummarizeAfterTokens
		node.Summarizer = providerSummarizer(p.Provider)
	}
	return node, nil
}

type todoArgs struct {
	Items []string `json:"items"`
}

// trackTodoHandler mirrors TodoListMiddleware's plan-tracking behavior,
// storing the plan in thread-scoped Metadata (spec.md §5) rather than a
// filesystem (FilesystemMiddleware's backing store, out of scope here).
func trackTodoHandler() tools.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args todoArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode track_todo arguments: %w", err)
		}
		encoded, err := json.Marshal(args.Items)
		if err != nil {
			return nil, fmt.Errorf("encode todo list: %w", err)
		}
		return tools.MetadataResult{
			Text:     fmt.Sprintf("tracking %d todo item(s)", len(args.Items)),
			Metadata: map[string]string{"todo": string(encoded)},
		}, nil
	}
}

const summaryPromptPreamble = "Summarize the conversation so far in a few dense " +
	"sentences, preserving any decisions, facts, and unresolved steps a future " +
	"turn will need. Do not add commentary about the summarization itself."

// providerSummarizer reimplements SummarizationMiddleware by asking the same
// LLM provider the node otherwise uses for a condensed recap, then replacing
// the working log with a single system message carrying that recap plus the
// most recent user message (so the model still sees what it is being asked
// right now).
func providerSummarizer(provider llm.Provider) agentnode.Summarizer {
	return func(ctx context.Context, log message.Log) (message.Log, error) {
		req := llm.ChatRequest{
			Messages: append([]message.Message{message.NewSystem(summaryPromptPreamble)}, log.All()...),
		}

		var summary string
		err := provider.StreamChat(ctx, req, func(chunk llm.Chunk) error {
			if chunk.Kind == llm.ChunkEnd {
				summary = chunk.End.Content
			}
			return nil
		})
		if err != nil {
			return message.Log{}, fmt.Errorf("summarize history: %w", err)
		}

		out := message.NewLog(message.NewSystem("Earlier conversation summary: " + strings.TrimSpace(summary)))
		if last, ok := log.LastUser(); ok {
			out.Append(last)
		}
		return out, nil
	}
}
