package redisvector_test

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/integrations/redisvector"
	"github.com/hhyun1051/teamh-orchestrator/vectorstore"
)

// newTestClient connects to REDIS_ADDR when set, otherwise skips, matching
// checkpoint/redisstore's integration test style.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redisvector integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestUpsertThenQueryReturnsBestMatchFirst(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	store := redisvector.New(rdb, "teamh-test:memory:")
	userID := "user-query"
	_, _ = store.DeleteAll(ctx, userID)

	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "a", UserID: userID, Content: "likes tea", Embedding: []float32{1, 0, 0}}))
	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "b", UserID: userID, Content: "likes coffee", Embedding: []float32{0, 1, 0}}))

	matches, err := store.Query(ctx, userID, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "a", matches[0].ID)
	require.Greater(t, matches[0].Score, matches[len(matches)-1].Score)
}

func TestGetAllOrdersMostRecentFirst(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	store := redisvector.New(rdb, "teamh-test:memory:")
	userID := "user-recency"
	_, _ = store.DeleteAll(ctx, userID)

	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "first", UserID: userID, Content: "older"}))
	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "second", UserID: userID, Content: "newer"}))

	records, err := store.GetAll(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "second", records[0].ID)
}

func TestDeleteRemovesRecord(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	store := redisvector.New(rdb, "teamh-test:memory:")
	userID := "user-delete"
	_, _ = store.DeleteAll(ctx, userID)

	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "a", UserID: userID, Content: "x"}))
	require.NoError(t, store.Delete(ctx, userID, "a"))

	records, err := store.GetAll(ctx, userID, 10)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestDeleteAllReturnsCountRemoved(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	store := redisvector.New(rdb, "teamh-test:memory:")
	userID := "user-delete-all"
	_, _ = store.DeleteAll(ctx, userID)

	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "a", UserID: userID, Content: "x"}))
	require.NoError(t, store.Upsert(ctx, vectorstore.Record{ID: "b", UserID: userID, Content: "y"}))

	count, err := store.DeleteAll(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
