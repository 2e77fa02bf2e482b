package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/runtimectx"
	"github.com/hhyun1051/teamh-orchestrator/tools"
	"github.com/hhyun1051/teamh-orchestrator/vectorstore"
)

const mSystemPrompt = "You are the memory manager. You store and recall a user's " +
	"long-term facts, preferences, habits, and goals. Adding a memory requires " +
	"approval; recalling one does not."

// embeddingDims fixes the hashing-vectorizer width used to turn memory text
// into an embedding when no embedding model is wired (this teacher's
// dependency set has no embedding SDK): a deterministic bag-of-words hash
// into a fixed-size vector, good enough for the cosine-similarity recall
// manager_m's tools need without depending on an external model call.
const embeddingDims = 64

func hashEmbed(text string) []float32 {
	vec := make([]float32, embeddingDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%embeddingDims]++
	}
	return vec
}

func buildManagerM(p BuildParams) (*agentnode.Node, error) {
	store := p.Collaborators.Vectorstore

	addSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string"},
			"memory_type": {"type": "string"}
		},
		"required": ["content"],
		"additionalProperties": false
	}`)
	searchSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 50}
		},
		"required": ["query"],
		"additionalProperties": false
	}`)
	getAllSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"limit": {"type": "integer", "minimum": 1, "maximum": 100}},
		"additionalProperties": false
	}`)
	updateSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"memory_id": {"type": "string"}, "content": {"type": "string"}},
		"required": ["memory_id", "content"],
		"additionalProperties": false
	}`)
	deleteSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"memory_id": {"type": "string"}},
		"required": ["memory_id"],
		"additionalProperties": false
	}`)
	noArgSchema := json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
	goalSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"goal": {"type": "string"}},
		"required": ["goal"],
		"additionalProperties": false
	}`)
	progressSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"note": {"type": "string"}},
		"required": ["note"],
		"additionalProperties": false
	}`)

	specs := []tools.Spec{
		{
			Name:             "add_memory",
			Description:      "Add a new long-term memory for the current user.",
			Schema:           addSchema,
			RequiresApproval: true,
			Handler:          addMemoryHandler(store),
		},
		{
			Name:        "search_memories",
			Description: "Search the current user's memories by semantic similarity.",
			Schema:      searchSchema,
			Handler:     searchMemoriesHandler(store),
		},
		{
			Name:        "get_all_memories",
			Description: "List the current user's most recently stored memories.",
			Schema:      getAllSchema,
			Handler:     getAllMemoriesHandler(store),
		},
		{
			Name:             "update_memory",
			Description:      "Replace the content of an existing memory.",
			Schema:           updateSchema,
			RequiresApproval: true,
			Handler:          updateMemoryHandler(store),
		},
		{
			Name:             "delete_memory",
			Description:      "Delete a single memory by id.",
			Schema:           deleteSchema,
			RequiresApproval: true,
			Handler:          deleteMemoryHandler(store),
		},
		{
			Name:             "delete_all_memories",
			Description:      "Delete every memory stored for the current user.",
			Schema:           noArgSchema,
			RequiresApproval: true,
			Handler:          deleteAllMemoriesHandler(store),
		},
		{
			Name:        "track_goal",
			Description: "Record or replace the user's current goal for this conversation.",
			Schema:      goalSchema,
			Handler:     trackGoalHandler(),
		},
		{
			Name:        "log_progress",
			Description: "Append a progress note against the currently tracked goal.",
			Schema:      progressSchema,
			Handler:     logProgressHandler(),
		},
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := p.Registry.Register(spec); err != nil {
			return nil, fmt.Errorf("agents: register manager_m tool %q: %w", spec.Name, err)
		}
		names = append(names, spec.Name)
	}

	return &agentnode.Node{
		Name:         Memory,
		SystemPrompt: mSystemPrompt,
		Provider:     p.Provider,
		Toolset:      names,
		Registry:     p.Registry,
		Approval:     p.Approval,
		Telemetry:    p.Telemetry,
	}, nil
}

func userID(ctx context.Context) string {
	rc, ok := runtimectx.FromContext(ctx)
	if !ok || rc.UserID == "" {
		return runtimectx.DefaultUserID
	}
	return rc.UserID
}

type addMemoryArgs struct {
	Content    string `json:"content"`
	MemoryType string `json:"memory_type"`
}

func addMemoryHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args addMemoryArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode add_memory arguments: %w", err)
		}
		if args.MemoryType == "" {
			args.MemoryType = "general"
		}
		id := fmt.Sprintf("%s-%d", userID(ctx), time.Now().UnixNano())
		rec := vectorstore.Record{
			ID:         id,
			UserID:     userID(ctx),
			Content:    args.Content,
			MemoryType: args.MemoryType,
			Embedding:  hashEmbed(args.Content),
		}
		if err := store.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("add memory: %w", err)
		}
		return fmt.Sprintf("memory %s added", id), nil
	}
}

type searchMemoriesArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func searchMemoriesHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args searchMemoriesArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode search_memories arguments: %w", err)
		}
		if args.Limit <= 0 {
			args.Limit = 5
		}
		matches, err := store.Query(ctx, userID(ctx), hashEmbed(args.Query), args.Limit)
		if err != nil {
			return nil, fmt.Errorf("search memories: %w", err)
		}
		if len(matches) == 0 {
			return fmt.Sprintf("no memories found for query: %q", args.Query), nil
		}
		var b strings.Builder
		for i, m := range matches {
			fmt.Fprintf(&b, "%d. [%s] %s (score %.3f)\n", i+1, m.ID, m.Content, m.Score)
		}
		return b.String(), nil
	}
}

type getAllMemoriesArgs struct {
	Limit int `json:"limit"`
}

func getAllMemoriesHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args getAllMemoriesArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode get_all_memories arguments: %w", err)
		}
		if args.Limit <= 0 {
			args.Limit = 10
		}
		records, err := store.GetAll(ctx, userID(ctx), args.Limit)
		if err != nil {
			return nil, fmt.Errorf("list memories: %w", err)
		}
		if len(records) == 0 {
			return "no memories stored for this user", nil
		}
		var b strings.Builder
		for i, r := range records {
			fmt.Fprintf(&b, "%d. [%s] (%s) %s\n", i+1, r.ID, r.MemoryType, r.Content)
		}
		return b.String(), nil
	}
}

type updateMemoryArgs struct {
	MemoryID string `json:"memory_id"`
	Content  string `json:"content"`
}

func updateMemoryHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args updateMemoryArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode update_memory arguments: %w", err)
		}
		rec := vectorstore.Record{
			ID:        args.MemoryID,
			UserID:    userID(ctx),
			Content:   args.Content,
			Embedding: hashEmbed(args.Content),
		}
		if err := store.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("update memory %q: %w", args.MemoryID, err)
		}
		return fmt.Sprintf("memory %s updated", args.MemoryID), nil
	}
}

type deleteMemoryArgs struct {
	MemoryID string `json:"memory_id"`
}

func deleteMemoryHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args deleteMemoryArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode delete_memory arguments: %w", err)
		}
		if err := store.Delete(ctx, userID(ctx), args.MemoryID); err != nil {
			return nil, fmt.Errorf("delete memory %q: %w", args.MemoryID, err)
		}
		return fmt.Sprintf("memory %s deleted", args.MemoryID), nil
	}
}

func deleteAllMemoriesHandler(store vectorstore.Store) tools.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		count, err := store.DeleteAll(ctx, userID(ctx))
		if err != nil {
			return nil, fmt.Errorf("delete all memories: %w", err)
		}
		return fmt.Sprintf("deleted %s memories", strconv.Itoa(count)), nil
	}
}

type goalArgs struct {
	Goal string `json:"goal"`
}

// trackGoalHandler folds original_source/database/postgres/crud/goal.py's
// goal tracking into a thread-scoped Metadata field (spec.md §5) rather than
// a second database, since the checkpoint store is this repo's one
// authoritative persistence layer.
func trackGoalHandler() tools.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args goalArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode track_goal arguments: %w", err)
		}
		return tools.MetadataResult{
			Text:     fmt.Sprintf("goal set: %s", args.Goal),
			Metadata: map[string]string{"goal": args.Goal},
		}, nil
	}
}

type progressArgs struct {
	Note string `json:"note"`
}

// logProgressHandler folds original_source/database/postgres/crud/progress.py
// into the same thread-scoped Metadata mechanism as trackGoalHandler.
func logProgressHandler() tools.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args progressArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode log_progress arguments: %w", err)
		}
		return tools.MetadataResult{
			Text:     fmt.Sprintf("progress noted: %s", args.Note),
			Metadata: map[string]string{"progress": args.Note},
		}, nil
	}
}
