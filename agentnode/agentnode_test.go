package agentnode_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/state"
	"github.com/hhyun1051/teamh-orchestrator/stream"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

// scriptedProvider replays a fixed sequence of responses, one per StreamChat
// call, letting a test drive a multi-round inner loop deterministically.
type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) StreamChat(_ context.Context, _ llm.ChatRequest, onChunk func(llm.Chunk) error) error {
	resp := p.responses[p.calls]
	p.calls++
	if resp.Content != "" {
		if err := onChunk(llm.Chunk{Kind: llm.ChunkToken, Token: resp.Content}); err != nil {
			return err
		}
	}
	for _, tc := range resp.ToolCalls {
		if err := onChunk(llm.Chunk{Kind: llm.ChunkToolCall, ToolCall: tc}); err != nil {
			return err
		}
	}
	return onChunk(llm.Chunk{Kind: llm.ChunkEnd, End: resp})
}

func TestRunTerminatesOnAssistantMessageWithNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{Content: "hello there"},
	}}
	node := &agentnode.Node{Name: "manager_i", Provider: provider}

	conv := state.NewConversation("t1", message.NewUser("hi"))
	update, interrupt, err := node.Run(context.Background(), conv, nil)
	require.NoError(t, err)
	assert.Nil(t, interrupt)
	require.Len(t, update.NewMessages, 1)
	assert.True(t, update.NewMessages[0].IsTerminalAssistant())
	assert.Equal(t, "hello there", update.NewMessages[0].Content)
	assert.Equal(t, "manager_i", update.CurrentAgent)
}

func TestRunExecutesToolCallsThenTerminates(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:   "lookup",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			return "42", nil
		},
	}))

	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{}`)}}},
		{Content: "the answer is 42"},
	}}
	sink := stream.NewMemorySink()
	node := &agentnode.Node{Name: "manager_m", Provider: provider, Registry: registry, Toolset: []string{"lookup"}}

	conv := state.NewConversation("t2", message.NewUser("what is the answer?"))
	update, interrupt, err := node.Run(context.Background(), conv, sink)
	require.NoError(t, err)
	assert.Nil(t, interrupt)

	require.Len(t, update.NewMessages, 3)
	assert.Equal(t, message.RoleAssistant, update.NewMessages[0].Role)
	require.Len(t, update.NewMessages[0].ToolCalls, 1)
	assert.Equal(t, message.RoleTool, update.NewMessages[1].Role)
	assert.Equal(t, "42", update.NewMessages[1].Content)
	assert.True(t, update.NewMessages[2].IsTerminalAssistant())

	var sawToolStart, sawToolEnd bool
	for _, ev := range sink.Events() {
		switch ev.Type() {
		case stream.EventToolStart:
			sawToolStart = true
		case stream.EventToolEnd:
			sawToolEnd = true
		}
	}
	assert.True(t, sawToolStart)
	assert.True(t, sawToolEnd)
}

func TestRunSuspendsOnGatedToolCall(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:             "delete_file",
		RequiresApproval: true,
		Schema:           json.RawMessage(`{"type":"object"}`),
	}))

	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c1", Name: "delete_file", Arguments: json.RawMessage(`{"path":"/tmp/x"}`)}}},
	}}
	mw := approval.New(registry, approval.Policy{})
	node := &agentnode.Node{Name: "manager_t", Provider: provider, Registry: registry, Toolset: []string{"delete_file"}, Approval: mw}

	conv := state.NewConversation("t3", message.NewUser("delete it"))
	update, interrupt, err := node.Run(context.Background(), conv, nil)
	require.NoError(t, err)
	require.NotNil(t, interrupt)
	require.Len(t, interrupt.Actions, 1)
	assert.Equal(t, "delete_file", interrupt.Actions[0].ToolName)

	// The assistant message carrying the tool call is still recorded so the
	// resumed run's log contains it.
	require.Len(t, update.NewMessages, 1)
	assert.Equal(t, message.RoleAssistant, update.NewMessages[0].Role)
}

func TestRunMergesToolMetadataResultIntoUpdate(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:   "track_goal",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return tools.MetadataResult{Text: "goal recorded", Metadata: map[string]string{"goal": "finish report"}}, nil
		},
	}))

	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{{ID: "c1", Name: "track_goal", Arguments: json.RawMessage(`{}`)}}},
		{Content: "noted"},
	}}
	node := &agentnode.Node{Name: "manager_d", Provider: provider, Registry: registry, Toolset: []string{"track_goal"}}

	conv := state.NewConversation("t5", message.NewUser("remember my goal"))
	update, interrupt, err := node.Run(context.Background(), conv, nil)
	require.NoError(t, err)
	assert.Nil(t, interrupt)

	require.Len(t, update.NewMessages, 3)
	assert.Equal(t, "goal recorded", update.NewMessages[1].Content)
	require.NotNil(t, update.Metadata)
	assert.Equal(t, "finish report", update.Metadata["goal"])
}

func TestRunFailsAfterIterationLimit(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:   "loopy",
		Schema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			return "ok", nil
		},
	}))

	responses := make([]llm.Response, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, llm.Response{ToolCalls: []message.ToolCall{{ID: "c", Name: "loopy", Arguments: json.RawMessage(`{}`)}}})
	}
	provider := &scriptedProvider{responses: responses}
	node := &agentnode.Node{Name: "manager_s", Provider: provider, Registry: registry, Toolset: []string{"loopy"}, MaxIterations: 2}

	conv := state.NewConversation("t4", message.NewUser("loop forever"))
	_, interrupt, err := node.Run(context.Background(), conv, nil)
	assert.ErrorIs(t, err, agentnode.ErrIterationLimitExceeded)
	assert.Nil(t, interrupt)
}
