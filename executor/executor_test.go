package executor_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint/inmem"
	"github.com/hhyun1051/teamh-orchestrator/executor"
	"github.com/hhyun1051/teamh-orchestrator/hooks"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/router"
	"github.com/hhyun1051/teamh-orchestrator/runtimectx"
	"github.com/hhyun1051/teamh-orchestrator/stream"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

// scriptedProvider replays one llm.Response per StreamChat call, used to
// script both the router's classification call and an agent's LLM turns.
type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) StreamChat(_ context.Context, _ llm.ChatRequest, onChunk func(llm.Chunk) error) error {
	resp := p.responses[p.calls]
	p.calls++
	for _, tc := range resp.ToolCalls {
		if err := onChunk(llm.Chunk{Kind: llm.ChunkToolCall, ToolCall: tc}); err != nil {
			return err
		}
	}
	return onChunk(llm.Chunk{Kind: llm.ChunkEnd, End: resp})
}

func newWebSearchRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Spec{
		Name:   "web_search",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return "it is sunny in Seoul", nil
		},
	}))
	return reg
}

func TestStartTurnRoutesAndCompletesARequest(t *testing.T) {
	reg := newWebSearchRegistry(t)
	searchAgent := &agentnode.Node{
		Name:     "s",
		Provider: &scriptedProvider{responses: []llm.Response{{Content: "it is sunny in Seoul"}}},
		Registry: reg,
	}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"s","reason":"web search request"}`)}}},
		AgentIDs:     []string{"i", "m", "s"},
		DefaultAgent: "m",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"s": searchAgent}, Hooks: hooks.NewBus()}

	result, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t1"}, "search for weather in Seoul", nil)
	require.NoError(t, err)
	assert.Equal(t, "s", result.State.CurrentAgent)
	assert.Equal(t, "s", result.State.LastActiveManager)
	assert.Zero(t, result.State.HandoffCount)
	assert.Nil(t, result.Interrupt)

	cp, err := store.LoadLatest(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, result.Version, cp.Version)
}

func TestStartTurnUsesStickyRoutingOnSecondTurn(t *testing.T) {
	reg := newWebSearchRegistry(t)
	searchProvider := &scriptedProvider{responses: []llm.Response{
		{Content: "it is sunny in Seoul"},
		{Content: "it is cloudy in Busan"},
	}}
	searchAgent := &agentnode.Node{Name: "s", Provider: searchProvider, Registry: reg}
	routerProvider := &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"s","reason":"web search request"}`)}}}
	routerNode := &router.Node{Provider: routerProvider, AgentIDs: []string{"i", "m", "s"}, DefaultAgent: "m"}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"s": searchAgent}, Hooks: hooks.NewBus()}

	_, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t1"}, "search for weather in Seoul", nil)
	require.NoError(t, err)

	sink := stream.NewMemorySink()
	result, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t1"}, "what about Busan", sink)
	require.NoError(t, err)
	assert.Equal(t, "s", result.State.CurrentAgent)

	// The router's classification provider must not be called a second time:
	// sticky routing bypasses the LLM entirely.
	assert.Equal(t, 1, routerProvider.calls)

	for _, ev := range sink.Events() {
		assert.NotEqual(t, stream.EventRouterDecision, ev.Type())
	}
}

func TestResumeApprovePathExecutesToolAndCompletes(t *testing.T) {
	reg := tools.NewRegistry()
	var stored string
	require.NoError(t, reg.Register(tools.Spec{
		Name:             "add_memory",
		RequiresApproval: true,
		Schema:           json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}}}`),
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var decoded struct {
				Content string `json:"content"`
			}
			require.NoError(t, json.Unmarshal(args, &decoded))
			stored = decoded.Content
			return "stored", nil
		},
	}))
	mw := approval.New(reg, approval.Policy{})
	memoryAgent := &agentnode.Node{
		Name:     "m",
		Registry: reg,
		Approval: mw,
		Provider: &scriptedProvider{responses: []llm.Response{
			{ToolCalls: []message.ToolCall{{ID: "c1", Name: "add_memory", Arguments: json.RawMessage(`{"content":"I like coffee"}`)}}},
			{Content: "got it, I'll remember that"},
		}},
	}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"m","reason":"memory request"}`)}}},
		AgentIDs:     []string{"i", "m", "s"},
		DefaultAgent: "m",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"m": memoryAgent}, Hooks: hooks.NewBus()}

	result, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t2"}, "remember that I like coffee", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Interrupt)
	require.Len(t, result.Interrupt.Actions, 1)
	assert.Equal(t, "add_memory", result.Interrupt.Actions[0].ToolName)

	final, err := graph.Resume(context.Background(), runtimectx.RunContext{ThreadID: "t2"}, []approval.Decision{{Kind: checkpoint.DecisionApprove}}, nil)
	require.NoError(t, err)
	assert.Nil(t, final.Interrupt)
	assert.Equal(t, "I like coffee", stored)

	last, ok := final.State.Messages.Last()
	require.True(t, ok)
	assert.True(t, last.IsTerminalAssistant())
}

func TestResumeEditPathInvokesToolWithEditedArguments(t *testing.T) {
	reg := tools.NewRegistry()
	var stored string
	require.NoError(t, reg.Register(tools.Spec{
		Name:             "add_memory",
		RequiresApproval: true,
		Schema:           json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}}}`),
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var decoded struct {
				Content string `json:"content"`
			}
			require.NoError(t, json.Unmarshal(args, &decoded))
			stored = decoded.Content
			return "stored", nil
		},
	}))
	mw := approval.New(reg, approval.Policy{})
	memoryAgent := &agentnode.Node{
		Name:     "m",
		Registry: reg,
		Approval: mw,
		Provider: &scriptedProvider{responses: []llm.Response{
			{ToolCalls: []message.ToolCall{{ID: "c1", Name: "add_memory", Arguments: json.RawMessage(`{"content":"I like coffee"}`)}}},
			{Content: "got it"},
		}},
	}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"m","reason":"memory request"}`)}}},
		AgentIDs:     []string{"m"},
		DefaultAgent: "m",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"m": memoryAgent}, Hooks: hooks.NewBus()}

	_, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t3"}, "remember that I like coffee", nil)
	require.NoError(t, err)

	edited := approval.Decision{
		Kind:            checkpoint.DecisionEdit,
		EditedName:      "add_memory",
		EditedArguments: json.RawMessage(`{"content":"I like iced coffee"}`),
	}
	final, err := graph.Resume(context.Background(), runtimectx.RunContext{ThreadID: "t3"}, []approval.Decision{edited}, nil)
	require.NoError(t, err)
	assert.Nil(t, final.Interrupt)
	assert.Equal(t, "I like iced coffee", stored)
}

func TestResumeRejectPathSkipsToolInvocation(t *testing.T) {
	reg := tools.NewRegistry()
	invoked := false
	require.NoError(t, reg.Register(tools.Spec{
		Name:             "add_memory",
		RequiresApproval: true,
		Schema:           json.RawMessage(`{"type":"object"}`),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			invoked = true
			return "stored", nil
		},
	}))
	mw := approval.New(reg, approval.Policy{})
	memoryAgent := &agentnode.Node{
		Name:     "m",
		Registry: reg,
		Approval: mw,
		Provider: &scriptedProvider{responses: []llm.Response{
			{ToolCalls: []message.ToolCall{{ID: "c1", Name: "add_memory", Arguments: json.RawMessage(`{"content":"I like coffee"}`)}}},
			{Content: "understood, I won't save that"},
		}},
	}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"m","reason":"memory request"}`)}}},
		AgentIDs:     []string{"m"},
		DefaultAgent: "m",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"m": memoryAgent}, Hooks: hooks.NewBus()}

	_, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t4"}, "remember that I like coffee", nil)
	require.NoError(t, err)

	final, err := graph.Resume(context.Background(), runtimectx.RunContext{ThreadID: "t4"}, []approval.Decision{{Kind: checkpoint.DecisionReject, RejectionMessage: "not now"}}, nil)
	require.NoError(t, err)
	assert.False(t, invoked)

	msgs := final.State.Messages.All()
	var sawRejection bool
	for _, m := range msgs {
		if m.Role == message.RoleTool && m.Content == "not now" {
			sawRejection = true
		}
	}
	assert.True(t, sawRejection)
}

func TestRunSuppressesHandoffBeyondMaxHandoffs(t *testing.T) {
	// i -> m -> s -> i -> m -> s, each hop produced by a one-shot tool call
	// whose Tool message carries the sentinel; the sixth hop must be capped.
	reg2 := tools.NewRegistry()
	register := func(name, sentinel string) {
		letter := sentinel
		require.NoError(t, reg2.Register(tools.Spec{
			Name:   name,
			Schema: json.RawMessage(`{"type":"object"}`),
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return "HANDOFF_TO_" + letter, nil
			},
		}))
	}
	register("handoff_to_m", "M")
	register("handoff_to_s", "S")
	register("handoff_to_i", "I")

	// Each agent's own inner loop (agentnode.Run) only stops on a terminal
	// assistant message, so every graph dispatch below scripts two LLM calls:
	// the handoff tool call, then a terminal reply announcing it. The Handoff
	// Detector only runs after an agent dispatch terminates, so it sees both
	// the Tool message carrying the sentinel and the terminal reply that follows.
	agentI := &agentnode.Node{Name: "i", Registry: reg2, Toolset: []string{"handoff_to_m"}, Provider: &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c1", Name: "handoff_to_m", Arguments: json.RawMessage(`{}`)}}},
		{Content: "transferring you to m"},
		{ToolCalls: []message.ToolCall{{ID: "c2", Name: "handoff_to_m", Arguments: json.RawMessage(`{}`)}}},
		{Content: "transferring you to m again"},
	}}}
	agentM := &agentnode.Node{Name: "m", Registry: reg2, Toolset: []string{"handoff_to_s"}, Provider: &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c3", Name: "handoff_to_s", Arguments: json.RawMessage(`{}`)}}},
		{Content: "transferring you to s"},
		{ToolCalls: []message.ToolCall{{ID: "c4", Name: "handoff_to_s", Arguments: json.RawMessage(`{}`)}}},
		{Content: "transferring you to s again"},
	}}}
	agentS := &agentnode.Node{Name: "s", Registry: reg2, Toolset: []string{"handoff_to_i"}, Provider: &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c5", Name: "handoff_to_i", Arguments: json.RawMessage(`{}`)}}},
		{Content: "transferring you to i"},
		{ToolCalls: []message.ToolCall{{ID: "c6", Name: "handoff_to_i", Arguments: json.RawMessage(`{}`)}}},
		{Content: "cap reached, staying here"},
	}}}

	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"i","reason":"start"}`)}}},
		AgentIDs:     []string{"i", "m", "s"},
		DefaultAgent: "i",
	}
	store := inmem.New()
	graph := &executor.Graph{
		Store:  store,
		Router: routerNode,
		Agents: map[string]*agentnode.Node{"i": agentI, "m": agentM, "s": agentS},
		Hooks:  hooks.NewBus(),
	}

	result, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t5"}, "start the chain", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, result.State.HandoffCount)
	assert.Nil(t, result.Interrupt)
	// The sixth handoff (s -> i) is suppressed by the cap: control never
	// transfers back to i, so the run ends on s.
	assert.Equal(t, "s", result.State.CurrentAgent)
	assert.Equal(t, "s", result.State.LastActiveManager)
}

func TestStartTurnRejectsWhenThreadHasPendingInterrupt(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Spec{Name: "add_memory", RequiresApproval: true, Schema: json.RawMessage(`{"type":"object"}`)}))
	mw := approval.New(reg, approval.Policy{})
	memoryAgent := &agentnode.Node{
		Name:     "m",
		Registry: reg,
		Approval: mw,
		Provider: &scriptedProvider{responses: []llm.Response{
			{ToolCalls: []message.ToolCall{{ID: "c1", Name: "add_memory", Arguments: json.RawMessage(`{}`)}}},
		}},
	}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"m","reason":"memory"}`)}}},
		AgentIDs:     []string{"m"},
		DefaultAgent: "m",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"m": memoryAgent}, Hooks: hooks.NewBus()}

	_, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t6"}, "remember something", nil)
	require.NoError(t, err)

	_, err = graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t6"}, "another message", nil)
	assert.ErrorIs(t, err, executor.ErrPendingInterrupt)
}

func TestResumeFailsWhenNoInterruptIsPending(t *testing.T) {
	reg := newWebSearchRegistry(t)
	searchAgent := &agentnode.Node{Name: "s", Provider: &scriptedProvider{responses: []llm.Response{{Content: "done"}}}, Registry: reg}
	routerNode := &router.Node{
		Provider:     &scriptedProvider{responses: []llm.Response{{Structured: []byte(`{"target_agent":"s","reason":"search"}`)}}},
		AgentIDs:     []string{"s"},
		DefaultAgent: "s",
	}
	store := inmem.New()
	graph := &executor.Graph{Store: store, Router: routerNode, Agents: map[string]*agentnode.Node{"s": searchAgent}, Hooks: hooks.NewBus()}

	_, err := graph.StartTurn(context.Background(), runtimectx.RunContext{ThreadID: "t7"}, "search something", nil)
	require.NoError(t, err)

	_, err = graph.Resume(context.Background(), runtimectx.RunContext{ThreadID: "t7"}, []approval.Decision{{Kind: checkpoint.DecisionApprove}}, nil)
	assert.ErrorIs(t, err, executor.ErrNoPendingInterrupt)
}
