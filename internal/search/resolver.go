package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Resolver expands a normalized query into a weighted set of related
// queries by walking the relation graph breadth-first. Path weight is
// the product of edge scores along the path: every hop compounds
// uncertainty rather than adding relevance.
type Resolver struct {
	relations RelationStore
	logger    *zap.Logger
	// minEdgeScore prunes edges whose confidence is too low to follow.
	minEdgeScore float64
}

// NewResolver constructs a Resolver.
func NewResolver(relations RelationStore, minEdgeScore float64, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		relations:    relations,
		logger:       logger,
		minEdgeScore: minEdgeScore,
	}
}

// Expand returns the input query at weight 1.0 plus every related query
// reachable within maxDepth hops, capped at maxResults entries. A query
// already visited at an equal or better cumulative weight is not
// re-expanded, which bounds traversal on cyclic graphs without
// excluding nodes reached again via a stronger path.
//
// Results are ordered by weight descending, then lexically, so equal
// inputs always expand identically.
func (r *Resolver) Expand(ctx context.Context, query string, maxDepth, maxResults int) ([]WeightedQuery, error) {
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 1
	}

	type node struct {
		query  string
		weight float64
		depth  int
	}

	best := map[string]float64{query: 1.0}
	queue := []node{{query: query, weight: 1.0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}
		if current.weight < best[current.query] {
			// A stronger path already expanded this query.
			continue
		}

		edges, err := r.relations.Neighbors(ctx, current.query)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", current.query, err)
		}
		// Deterministic traversal order regardless of store iteration.
		sort.Slice(edges, func(i, j int) bool { return edges[i].Target < edges[j].Target })

		for _, edge := range edges {
			if edge.Score < r.minEdgeScore {
				continue
			}
			weight := current.weight * edge.Score
			if prev, seen := best[edge.Target]; seen && prev >= weight {
				continue
			}
			best[edge.Target] = weight
			queue = append(queue, node{query: edge.Target, weight: weight, depth: current.depth + 1})
		}
	}

	out := make([]WeightedQuery, 0, len(best))
	for q, w := range best {
		out = append(out, WeightedQuery{Query: q, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
