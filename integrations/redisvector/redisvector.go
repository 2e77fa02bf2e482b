// Package redisvector implements vectorstore.Store on top of Redis
// (github.com/redis/go-redis/v9), the same client library that
// checkpoint/redisstore uses; cmd/server gives each of the two stores its own
// redis.Client connection. This teacher's dependency set has no native vector-search Redis
// module, so Query computes cosine similarity client-side over the small
// per-user record set fetched with HGETALL — a brute-force scan rather than
// an ANN index, acceptable at the single-user-household scale spec.md §5
// describes for manager_m.
package redisvector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/hhyun1051/teamh-orchestrator/vectorstore"
)

// Store persists vectorstore.Record values in Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New constructs a Store backed by rdb. keyPrefix namespaces all keys this
// Store writes (e.g. "teamh:memory:"); it defaults to "memory:" when empty.
func New(rdb *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "memory:"
	}
	return &Store{rdb: rdb, prefix: keyPrefix}
}

func (s *Store) recordsKey(userID string) string {
	return s.prefix + userID + ":records"
}

func (s *Store) seqKey(userID string) string {
	return s.prefix + userID + ":seq"
}

// Upsert stores rec in the hash for rec.UserID and bumps its recency rank.
func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisvector: marshal record %q: %w", rec.ID, err)
	}
	if err := s.rdb.HSet(ctx, s.recordsKey(rec.UserID), rec.ID, body).Err(); err != nil {
		return fmt.Errorf("redisvector: upsert record %q: %w", rec.ID, err)
	}
	if err := s.rdb.ZAdd(ctx, s.seqKey(rec.UserID), redis.Z{Score: float64(nowSeq(ctx, s.rdb, s.seqKey(rec.UserID))), Member: rec.ID}).Err(); err != nil {
		return fmt.Errorf("redisvector: update recency for %q: %w", rec.ID, err)
	}
	return nil
}

// nowSeq returns a strictly increasing counter per userID key, used as the
// recency score so that ordering does not depend on wall-clock time.
func nowSeq(ctx context.Context, rdb *redis.Client, seqKey string) int64 {
	n, err := rdb.Incr(ctx, seqKey+":counter").Result()
	if err != nil {
		return 0
	}
	return n
}

// Query returns the limit records for userID most similar to queryEmbedding
// by cosine similarity, best match first.
func (s *Store) Query(ctx context.Context, userID string, queryEmbedding []float32, limit int) ([]vectorstore.Match, error) {
	records, err := s.all(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("redisvector: query for user %q: %w", userID, err)
	}

	matches := make([]vectorstore.Match, 0, len(records))
	for _, rec := range records {
		matches = append(matches, vectorstore.Match{Record: rec, Score: cosineSimilarity(queryEmbedding, rec.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// GetAll returns up to limit records for userID, most recently upserted
// first.
func (s *Store) GetAll(ctx context.Context, userID string, limit int) ([]vectorstore.Record, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.seqKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisvector: list recency for user %q: %w", userID, err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]vectorstore.Record, 0, len(ids))
	for _, id := range ids {
		body, err := s.rdb.HGet(ctx, s.recordsKey(userID), id).Result()
		if err != nil {
			continue // recency entry survived a since-deleted record
		}
		var rec vectorstore.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("redisvector: decode record %q: %w", id, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes the record with id for userID.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if err := s.rdb.HDel(ctx, s.recordsKey(userID), id).Err(); err != nil {
		return fmt.Errorf("redisvector: delete record %q: %w", id, err)
	}
	if err := s.rdb.ZRem(ctx, s.seqKey(userID), id).Err(); err != nil {
		return fmt.Errorf("redisvector: remove recency for %q: %w", id, err)
	}
	return nil
}

// DeleteAll removes every record for userID, returning the count removed.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	count, err := s.rdb.HLen(ctx, s.recordsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisvector: count records for user %q: %w", userID, err)
	}
	if err := s.rdb.Del(ctx, s.recordsKey(userID), s.seqKey(userID), s.seqKey(userID)+":counter").Err(); err != nil {
		return 0, fmt.Errorf("redisvector: delete all records for user %q: %w", userID, err)
	}
	return int(count), nil
}

func (s *Store) all(ctx context.Context, userID string) ([]vectorstore.Record, error) {
	raw, err := s.rdb.HGetAll(ctx, s.recordsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	records := make([]vectorstore.Record, 0, len(raw))
	for id, body := range raw {
		var rec vectorstore.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", id, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
