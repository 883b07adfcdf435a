package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ServiceConfig bounds the expansion and result sizes per request.
type ServiceConfig struct {
	MaxDepth       int
	MaxExpansions  int
	DefaultLimit   int
	MaxResultLimit int
}

// Result is one merged search hit: the index's relevance scaled by the
// confidence of the expanded query that produced it.
type Result struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
	FromQuery string  `json:"from_query,omitempty"`
}

// Response is the payload of one search request.
type Response struct {
	SearchID   string          `json:"search_id"`
	Normalized string          `json:"normalized_query"`
	Expansions []WeightedQuery `json:"expansions"`
	Results    []Result        `json:"results"`
}

// Service runs the full query pipeline: normalize, log, expand, look up
// each expanded term in the index, and merge the rankings.
type Service struct {
	resolver *Resolver
	events   EventStore
	index    Index
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger
	cfg      ServiceConfig
}

// NewService constructs a Service.
func NewService(
	resolver *Resolver,
	events EventStore,
	index Index,
	ids IDGenerator,
	clock Clock,
	cfg ServiceConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxResultLimit <= 0 {
		cfg.MaxResultLimit = 100
	}
	return &Service{
		resolver: resolver,
		events:   events,
		index:    index,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// Search resolves a raw query end to end. Expansion failures degrade
// gracefully: the normalized query is searched alone instead of failing
// the request.
func (s *Service) Search(ctx context.Context, raw, sessionID string, limit int) (Response, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return Response{}, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxResultLimit {
		limit = s.cfg.MaxResultLimit
	}

	expansions, err := s.resolver.Expand(ctx, normalized, s.cfg.MaxDepth, s.cfg.MaxExpansions)
	if err != nil {
		s.logger.Warn("expansion failed, falling back to normalized query",
			zap.String("query", normalized), zap.Error(err))
		expansions = []WeightedQuery{{Query: normalized, Weight: 1.0}}
	}

	searchID := s.logQuery(ctx, raw, normalized, sessionID, expansions)

	merged := make(map[string]Result)
	for _, expansion := range expansions {
		hits, err := s.index.Query(ctx, expansion.Query, limit)
		if err != nil {
			s.logger.Warn("index lookup failed",
				zap.String("term", expansion.Query), zap.Error(err))
			continue
		}
		for _, hit := range hits {
			score := expansion.Weight * hit.Relevance
			if existing, ok := merged[hit.URL]; ok && existing.Score >= score {
				continue
			}
			merged[hit.URL] = Result{
				URL:       hit.URL,
				Title:     hit.Title,
				Score:     score,
				FromQuery: expansion.Query,
			}
		}
	}

	results := make([]Result, 0, len(merged))
	for _, res := range merged {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].URL < results[j].URL
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return Response{
		SearchID:   searchID,
		Normalized: normalized,
		Expansions: expansions,
		Results:    results,
	}, nil
}

// RecordClick appends an immutable click event tied to a logged search.
// Relation scores are not touched here; the aggregator folds clicks in
// asynchronously.
func (s *Service) RecordClick(ctx context.Context, searchID, url string, rank int) error {
	if searchID == "" || url == "" {
		return fmt.Errorf("search id and url are required")
	}
	if rank < 0 {
		return fmt.Errorf("rank must be >= 0, got %d", rank)
	}
	if _, err := s.events.GetQuery(ctx, searchID); err != nil {
		return fmt.Errorf("lookup search %s: %w", searchID, err)
	}
	ev := ClickEvent{
		SearchLogID: searchID,
		URL:         url,
		Rank:        rank,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.events.LogClick(ctx, ev); err != nil {
		return fmt.Errorf("log click: %w", err)
	}
	return nil
}

// logQuery writes the search event. Logging failure is not fatal to the
// request; the search id is simply empty and clicks cannot attach.
func (s *Service) logQuery(ctx context.Context, raw, normalized, sessionID string, expansions []WeightedQuery) string {
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Error("generate search id failed", zap.Error(err))
		return ""
	}
	terms := make([]string, 0, len(expansions))
	for _, e := range expansions {
		terms = append(terms, e.Query)
	}
	ev := QueryEvent{
		ID:              id,
		RawQuery:        raw,
		NormalizedQuery: normalized,
		ExpandedQueries: terms,
		SessionID:       sessionID,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.events.LogQuery(ctx, ev); err != nil {
		s.logger.Error("log search query failed", zap.String("id", id), zap.Error(err))
		return ""
	}
	return id
}
