// Package vectorstore defines the narrow embedding storage interface
// manager_m's memory tools depend on (spec.md §5: "the out-of-scope
// embedding/vector-store collaborator"). The core never imports a concrete
// backend; integrations/redisvector is the one adapter wired in this repo.
package vectorstore

import "context"

// Record is one stored memory: free-text content plus its embedding vector
// and a small set of fields manager_m's tools filter and render by.
type Record struct {
	ID         string
	UserID     string
	Content    string
	MemoryType string
	Embedding  []float32
}

// Match is a Record returned by Query, paired with its similarity score
// (cosine similarity against the query embedding; higher is closer).
type Match struct {
	Record
	Score float64
}

// Store upserts and queries embedded records, scoped per user id (spec.md
// §5 manager_m: "long-term user facts").
type Store interface {
	// Upsert stores rec, replacing any existing record with the same ID.
	Upsert(ctx context.Context, rec Record) error
	// Query returns the limit records for userID whose embeddings are most
	// similar to queryEmbedding, best match first.
	Query(ctx context.Context, userID string, queryEmbedding []float32, limit int) ([]Match, error)
	// GetAll returns up to limit records for userID, most recently upserted
	// first.
	GetAll(ctx context.Context, userID string, limit int) ([]Record, error)
	// Delete removes the record with id for userID.
	Delete(ctx context.Context, userID, id string) error
	// DeleteAll removes every record for userID, returning the count removed.
	DeleteAll(ctx context.Context, userID string) (int, error)
}
