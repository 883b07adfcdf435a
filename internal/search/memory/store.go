// Package memory provides in-memory relation and event stores for
// development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/minasearch/frontier/internal/search"
)

// RelationStore keeps the relation graph as an adjacency map keyed by
// normalized source query.
type RelationStore struct {
	mu    sync.RWMutex
	edges map[string]map[string]search.QueryRelation // source -> target -> edge
}

// NewRelationStore constructs an empty RelationStore.
func NewRelationStore() *RelationStore {
	return &RelationStore{edges: make(map[string]map[string]search.QueryRelation)}
}

// Neighbors returns copies of all outgoing edges from source.
func (s *RelationStore) Neighbors(_ context.Context, source string) ([]search.QueryRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := s.edges[source]
	out := make([]search.QueryRelation, 0, len(targets))
	for _, rel := range targets {
		out = append(out, rel)
	}
	return out, nil
}

// Upsert validates and writes an edge, replacing any existing
// (source, target) pair.
func (s *RelationStore) Upsert(_ context.Context, rel search.QueryRelation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	targets, ok := s.edges[rel.Source]
	if !ok {
		targets = make(map[string]search.QueryRelation)
		s.edges[rel.Source] = targets
	}
	targets[rel.Target] = rel
	return nil
}

// UpdateScore rescores an existing edge; unknown edges are ignored
// (the aggregator may race manual curation).
func (s *RelationStore) UpdateScore(_ context.Context, source, target string, score float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets, ok := s.edges[source]
	if !ok {
		return nil
	}
	rel, ok := targets[target]
	if !ok {
		return nil
	}
	rel.Score = score
	rel.UpdatedAt = at
	targets[target] = rel
	return nil
}

// ByOrigin lists all edges with the given origin.
func (s *RelationStore) ByOrigin(_ context.Context, origin search.RelationOrigin) ([]search.QueryRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []search.QueryRelation
	for _, targets := range s.edges {
		for _, rel := range targets {
			if rel.Origin == origin {
				out = append(out, rel)
			}
		}
	}
	return out, nil
}

// EventStore keeps search and click logs in append-only slices.
type EventStore struct {
	mu      sync.RWMutex
	queries map[string]search.QueryEvent
	clicks  []search.ClickEvent
}

// NewEventStore constructs an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{queries: make(map[string]search.QueryEvent)}
}

// LogQuery stores a search event.
func (s *EventStore) LogQuery(_ context.Context, ev search.QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[ev.ID] = ev
	return nil
}

// LogClick appends a click event.
func (s *EventStore) LogClick(_ context.Context, ev search.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, ev)
	return nil
}

// GetQuery fetches a search event by id.
func (s *EventStore) GetQuery(_ context.Context, id string) (search.QueryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.queries[id]
	if !ok {
		return search.QueryEvent{}, search.ErrEventNotFound
	}
	return ev, nil
}

// Clicks returns a copy of the click log (test helper).
func (s *EventStore) Clicks() []search.ClickEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]search.ClickEvent, len(s.clicks))
	copy(out, s.clicks)
	return out
}

// ExpansionStats joins the query log against the click log: for every
// (normalized query, expanded term) pair in the window it counts the
// searches and how many of them drew at least one click.
func (s *EventStore) ExpansionStats(_ context.Context, since time.Time) ([]search.ExpansionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clicked := make(map[string]bool, len(s.clicks))
	for _, c := range s.clicks {
		clicked[c.SearchLogID] = true
	}

	counts := make(map[[2]string]*search.ExpansionStat)
	for _, ev := range s.queries {
		if ev.CreatedAt.Before(since) {
			continue
		}
		for _, term := range ev.ExpandedQueries {
			if term == ev.NormalizedQuery {
				continue
			}
			key := [2]string{ev.NormalizedQuery, term}
			stat, ok := counts[key]
			if !ok {
				stat = &search.ExpansionStat{Source: ev.NormalizedQuery, Target: term}
				counts[key] = stat
			}
			stat.Searches++
			if clicked[ev.ID] {
				stat.Clicks++
			}
		}
	}

	out := make([]search.ExpansionStat, 0, len(counts))
	for _, stat := range counts {
		out = append(out, *stat)
	}
	return out, nil
}
