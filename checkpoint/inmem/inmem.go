// Package inmem provides an in-memory implementation of checkpoint.Store for
// testing and local development. Versions are kept per thread id, with no
// persistence across process restarts; production deployments should use
// checkpoint/redisstore instead.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
)

// Store implements checkpoint.Store in memory. All operations are
// thread-safe via sync.Mutex, and Save serializes per-thread-id updates as
// required by the Store contract.
type Store struct {
	mu     sync.Mutex
	byID   map[string]map[int64]checkpoint.Checkpoint
	latest map[string]int64
}

// New constructs an empty Store with no recorded checkpoints.
func New() *Store {
	return &Store{
		byID:   make(map[string]map[int64]checkpoint.Checkpoint),
		latest: make(map[string]int64),
	}
}

// Save assigns cp the next version for its thread id and stores it. The
// caller-supplied cp.Version is ignored; Save is the sole authority on
// version assignment so concurrent callers can never collide.
func (s *Store) Save(_ context.Context, cp checkpoint.Checkpoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.byID[cp.ThreadID]
	if !ok {
		versions = make(map[int64]checkpoint.Checkpoint)
		s.byID[cp.ThreadID] = versions
	}

	next := s.latest[cp.ThreadID] + 1
	cp.Version = next
	versions[next] = cp
	s.latest[cp.ThreadID] = next
	return next, nil
}

// LoadLatest returns the most recently saved checkpoint for threadID.
func (s *Store) LoadLatest(_ context.Context, threadID string) (checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, ok := s.latest[threadID]
	if !ok {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	return s.byID[threadID][version], nil
}

// LoadAt returns the checkpoint at the given version for threadID.
func (s *Store) LoadAt(_ context.Context, threadID string, version int64) (checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.byID[threadID]
	if !ok {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	cp, ok := versions[version]
	if !ok {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	return cp, nil
}

// Versions returns all stored version numbers for threadID in ascending
// order. Versions is not part of the checkpoint.Store interface; it exists
// to support tests that assert on checkpoint history.
func (s *Store) Versions(threadID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make([]int64, 0, len(s.byID[threadID]))
	for v := range s.byID[threadID] {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

// Reset clears all stored checkpoints. Useful for test isolation; not part
// of the checkpoint.Store interface.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]map[int64]checkpoint.Checkpoint)
	s.latest = make(map[string]int64)
}
