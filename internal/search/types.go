package search

import (
	"errors"
	"fmt"
	"time"
)

// RelationType classifies an edge in the query relation graph.
type RelationType string

// Relation type values.
const (
	RelationSynonym    RelationType = "synonym"
	RelationExpansion  RelationType = "expansion"
	RelationCorrection RelationType = "correction"
)

// RelationOrigin records who created an edge. Only auto_stats edges are
// rescored by the feedback aggregator; manual edges are immune.
type RelationOrigin string

// Relation origin values.
const (
	OriginManual    RelationOrigin = "manual"
	OriginAutoStats RelationOrigin = "auto_stats"
	OriginAutoNLP   RelationOrigin = "auto_nlp"
)

// Sentinel errors for relation writes and event lookups.
var (
	// ErrSelfLoop rejects edges whose source equals their target.
	ErrSelfLoop = errors.New("relation source and target are the same query")
	// ErrEventNotFound indicates an unknown search log id.
	ErrEventNotFound = errors.New("search event not found")
)

// QueryRelation is a directed, weighted, typed edge between two
// normalized queries. Edges are never deleted, only rescored, so the
// graph keeps its lineage for audit.
type QueryRelation struct {
	Source    string         `json:"source_query"`
	Target    string         `json:"target_query"`
	Type      RelationType   `json:"relation_type"`
	Score     float64        `json:"score"`
	Origin    RelationOrigin `json:"source_origin"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate rejects malformed edges at write time.
func (r QueryRelation) Validate() error {
	if r.Source == "" || r.Target == "" {
		return fmt.Errorf("relation requires source and target queries")
	}
	if r.Source == r.Target {
		return fmt.Errorf("%w: %q", ErrSelfLoop, r.Source)
	}
	switch r.Type {
	case RelationSynonym, RelationExpansion, RelationCorrection:
	default:
		return fmt.Errorf("unknown relation type %q", r.Type)
	}
	switch r.Origin {
	case OriginManual, OriginAutoStats, OriginAutoNLP:
	default:
		return fmt.Errorf("unknown relation origin %q", r.Origin)
	}
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("relation score %v outside [0,1]", r.Score)
	}
	return nil
}

// QueryEvent is one logged search, immutable once written.
type QueryEvent struct {
	ID              string    `json:"id"`
	RawQuery        string    `json:"raw_query"`
	NormalizedQuery string    `json:"normalized_query"`
	ExpandedQueries []string  `json:"expanded_queries"`
	SessionID       string    `json:"session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClickEvent records one click on a search result, append-only.
type ClickEvent struct {
	SearchLogID string    `json:"search_log_id"`
	URL         string    `json:"url"`
	Rank        int       `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
}

// WeightedQuery is one entry of an expansion result: a query plus the
// cumulative confidence of the path that reached it.
type WeightedQuery struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
}

// ExpansionStat aggregates click-through evidence for one relation edge
// over a window: how often searches for Source surfaced Target in the
// expansion, and how many of those searches drew a click.
type ExpansionStat struct {
	Source   string
	Target   string
	Searches int
	Clicks   int
}
