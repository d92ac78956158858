package domain

import (
	"context"
	"time"
)

// KnowledgeEntry is one insight fragment persisted in the knowledge store.
// Entries are never mutated; a newer entry with the same query hash but
// different content supersedes without replacing (both stay retrievable).
type KnowledgeEntry struct {
	ID          string            `json:"id"`
	QueryHash   string            `json:"query_hash"`
	Domain      string            `json:"domain"`
	PatternType string            `json:"pattern_type"`
	Content     string            `json:"content"`
	SessionID   string            `json:"session_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// KnowledgeContext is the result of a cache retrieval. A degraded retrieval
// (backing store failure) yields the safe default: domain "general", empty
// slices, empty hash.
type KnowledgeContext struct {
	Domain         string           `json:"domain"`
	SimilarResults []KnowledgeEntry `json:"similar_results"`
	Entities       []string         `json:"knowledge_entities"`
	QueryHash      string           `json:"query_hash,omitempty"`
}

// KnowledgeStore is the narrow contract the cache requires from its backing
// store. Implementations own their locking; concurrent access is expected.
type KnowledgeStore interface {
	// Write upserts an entry keyed by (query hash, content). Writing an
	// identical entry twice must not error or duplicate.
	Write(ctx context.Context, entry KnowledgeEntry) error
	// Search returns entries matching the query, most recent first.
	// An empty domain matches all domains.
	Search(ctx context.Context, query, domain string, limit int) ([]KnowledgeEntry, error)
	// Prune removes entries created before the cutoff, returning the count.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
