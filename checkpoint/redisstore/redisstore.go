// Package redisstore implements checkpoint.Store on top of Redis
// (github.com/redis/go-redis/v9), the durable backend for production
// deployments (spec.md §4.1, §6.5). Each thread id owns a Redis hash keyed by
// version plus a pointer to the latest version, so Save/LoadLatest/LoadAt map
// onto a small number of round trips without needing a separate index.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
)

// Store persists checkpoints in Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New constructs a Store backed by rdb. keyPrefix namespaces all keys this
// Store writes (e.g. "teamh:checkpoint:"), letting one Redis instance serve
// multiple deployments. keyPrefix defaults to "checkpoint:" when empty.
func New(rdb *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "checkpoint:"
	}
	return &Store{rdb: rdb, prefix: keyPrefix}
}

func (s *Store) versionsKey(threadID string) string {
	return s.prefix + threadID + ":versions"
}

func (s *Store) latestKey(threadID string) string {
	return s.prefix + threadID + ":latest"
}

type wireCheckpoint struct {
	ThreadID  string                `json:"thread_id"`
	ParentID  string                `json:"parent_id"`
	State     json.RawMessage       `json:"state"`
	Interrupt *checkpoint.Interrupt `json:"interrupt,omitempty"`
	Version   int64                 `json:"version"`
	ID        string                `json:"id"`
	CreatedAt int64                 `json:"created_at_unix_nano"`
}

// Save persists cp at the next version for cp.ThreadID using Redis's atomic
// INCR on the thread's latest-version key to assign a strictly increasing
// version number, then writes the checkpoint body to the per-version hash
// field. The two operations are not
// wrapped in a MULTI/EXEC transaction because INCR already guarantees each
// caller observes a distinct version; a crash between the two writes leaves
// at most an orphaned version number, never a corrupted or forked log.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) (int64, error) {
	version, err := s.rdb.Incr(ctx, s.latestKey(cp.ThreadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: assign version for thread %q: %w", cp.ThreadID, err)
	}
	cp.Version = version

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return 0, fmt.Errorf("redisstore: marshal state for thread %q: %w", cp.ThreadID, err)
	}

	wire := wireCheckpoint{
		ThreadID:  cp.ThreadID,
		ParentID:  cp.ParentID,
		State:     stateJSON,
		Interrupt: cp.Interrupt,
		Version:   cp.Version,
		ID:        cp.ID,
		CreatedAt: cp.CreatedAt.UnixNano(),
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return 0, fmt.Errorf("redisstore: marshal checkpoint for thread %q: %w", cp.ThreadID, err)
	}

	if err := s.rdb.HSet(ctx, s.versionsKey(cp.ThreadID), fmt.Sprintf("%d", version), body).Err(); err != nil {
		return 0, fmt.Errorf("redisstore: save version %d for thread %q: %w", version, cp.ThreadID, err)
	}
	return version, nil
}

// LoadLatest returns the checkpoint at the version currently referenced by
// the thread's latest-version counter.
func (s *Store) LoadLatest(ctx context.Context, threadID string) (checkpoint.Checkpoint, error) {
	versionStr, err := s.rdb.Get(ctx, s.latestKey(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redisstore: read latest version for thread %q: %w", threadID, err)
	}

	var version int64
	if _, err := fmt.Sscanf(versionStr, "%d", &version); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redisstore: corrupt latest-version value for thread %q: %w", threadID, err)
	}
	return s.LoadAt(ctx, threadID, version)
}

// LoadAt returns the checkpoint at the given version for threadID.
func (s *Store) LoadAt(ctx context.Context, threadID string, version int64) (checkpoint.Checkpoint, error) {
	body, err := s.rdb.HGet(ctx, s.versionsKey(threadID), fmt.Sprintf("%d", version)).Result()
	if errors.Is(err, redis.Nil) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redisstore: load version %d for thread %q: %w", version, threadID, err)
	}

	var wire wireCheckpoint
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redisstore: decode checkpoint envelope for thread %q: %w", threadID, err)
	}

	cp := checkpoint.Checkpoint{
		ThreadID:  wire.ThreadID,
		ParentID:  wire.ParentID,
		Interrupt: wire.Interrupt,
		Version:   wire.Version,
		ID:        wire.ID,
		CreatedAt: time.Unix(0, wire.CreatedAt).UTC(),
	}
	if err := json.Unmarshal(wire.State, &cp.State); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redisstore: decode conversation state for thread %q: %w", threadID, err)
	}
	return cp, nil
}
