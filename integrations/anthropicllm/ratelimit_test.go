package anthropicllm_test

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/integrations/anthropicllm"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
)

type fakeProvider struct {
	err   error
	calls int
}

func (f *fakeProvider) StreamChat(_ context.Context, _ llm.ChatRequest, onChunk func(llm.Chunk) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return onChunk(llm.Chunk{Kind: llm.ChunkEnd, End: llm.Response{Content: "ok"}})
}

func chatRequest(text string) llm.ChatRequest {
	return llm.ChatRequest{Messages: []message.Message{message.NewUser(text)}}
}

func TestRateLimiterPassesCallThrough(t *testing.T) {
	next := &fakeProvider{}
	wrapped := anthropicllm.NewRateLimiter(60000, 60000).Wrap(next)

	var got llm.Response
	err := wrapped.StreamChat(context.Background(), chatRequest("hello"), func(c llm.Chunk) error {
		if c.Kind == llm.ChunkEnd {
			got = c.End
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Content)
	assert.Equal(t, 1, next.calls)
}

func TestRateLimiterBacksOffOnRateLimitedError(t *testing.T) {
	next := &fakeProvider{err: &sdk.Error{StatusCode: 429}}
	limiter := anthropicllm.NewRateLimiter(60000, 60000)
	wrapped := limiter.Wrap(next)

	err := wrapped.StreamChat(context.Background(), chatRequest("hello"), func(llm.Chunk) error { return nil })
	require.Error(t, err)

	// A second call still goes through (the limiter slows throughput, it
	// never refuses a call outright), but now draws from a halved budget.
	next.err = nil
	err = wrapped.StreamChat(context.Background(), chatRequest("hello"), func(llm.Chunk) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestRateLimiterWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, anthropicllm.NewRateLimiter(1000, 1000).Wrap(nil))
}
