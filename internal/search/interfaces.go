package search

import (
	"context"
	"time"
)

// RelationStore reads and mutates the query relation graph. Traversal
// only reads; scores are mutated by the feedback aggregator and by
// manual curation through the admin API.
type RelationStore interface {
	// Neighbors returns all outgoing edges from source.
	Neighbors(ctx context.Context, source string) ([]QueryRelation, error)
	// Upsert writes an edge, replacing score/type on conflict of the
	// (source, target) pair. Malformed edges are rejected, never stored.
	Upsert(ctx context.Context, rel QueryRelation) error
	// UpdateScore rescores an existing edge.
	UpdateScore(ctx context.Context, source, target string, score float64, at time.Time) error
	// ByOrigin lists all edges with the given origin.
	ByOrigin(ctx context.Context, origin RelationOrigin) ([]QueryRelation, error)
}

// EventStore persists the immutable search and click logs and serves
// the aggregation queries the feedback loop needs.
type EventStore interface {
	LogQuery(ctx context.Context, ev QueryEvent) error
	LogClick(ctx context.Context, ev ClickEvent) error
	GetQuery(ctx context.Context, id string) (QueryEvent, error)
	// ExpansionStats aggregates per-edge click-through counts for
	// searches logged at or after since.
	ExpansionStats(ctx context.Context, since time.Time) ([]ExpansionStat, error)
}

// IndexHit is one ranked match returned by the external search index.
type IndexHit struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
}

// Index is the external full-text index. This core treats it as opaque:
// it submits one term set per expanded query and merges the rankings.
type Index interface {
	Query(ctx context.Context, term string, limit int) ([]IndexHit, error)
}

// IDGenerator produces search log ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
