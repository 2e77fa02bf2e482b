package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint/inmem"
	"github.com/hhyun1051/teamh-orchestrator/state"
)

func TestSaveAssignsMonotonicVersions(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	v1, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{ThreadID: "t1"}})
	require.NoError(t, err)
	v2, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{ThreadID: "t1"}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
}

func TestLoadLatestReturnsMostRecentSave(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	_, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{CurrentAgent: "first"}})
	require.NoError(t, err)
	_, err = s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{CurrentAgent: "second"}})
	require.NoError(t, err)

	latest, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "second", latest.State.CurrentAgent)
}

func TestLoadLatestUnknownThreadReturnsErrNotFound(t *testing.T) {
	s := inmem.New()
	_, err := s.LoadLatest(context.Background(), "nope")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestLoadAtSpecificVersion(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	v1, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{CurrentAgent: "first"}})
	require.NoError(t, err)
	_, err = s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1", State: state.Conversation{CurrentAgent: "second"}})
	require.NoError(t, err)

	cp, err := s.LoadAt(ctx, "t1", v1)
	require.NoError(t, err)
	assert.Equal(t, "first", cp.State.CurrentAgent)
}

func TestSaveIsIsolatedPerThreadID(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	v1, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t1"})
	require.NoError(t, err)
	v2, err := s.Save(ctx, checkpoint.Checkpoint{ThreadID: "t2"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(1), v2)
}
