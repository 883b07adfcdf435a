// Package memory provides an in-memory frontier store for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minasearch/frontier/internal/frontier"
)

// Store keeps the frontier in a mutex-guarded map. The mutex gives the
// same atomic claim semantics the Postgres backend gets from row locks.
type Store struct {
	mu      sync.Mutex
	targets map[string]frontier.CrawlTarget
	policy  frontier.Policy
	clock   frontier.Clock
}

// NewStore constructs an empty Store.
func NewStore(policy frontier.Policy, clock frontier.Clock) *Store {
	return &Store{
		targets: make(map[string]frontier.CrawlTarget),
		policy:  policy,
		clock:   clock,
	}
}

// Register inserts targets that are not already present.
func (s *Store) Register(_ context.Context, targets []frontier.CrawlTarget) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, t := range targets {
		if _, exists := s.targets[t.URL]; exists {
			continue
		}
		s.targets[t.URL] = t
		inserted++
	}
	return inserted, nil
}

// ClaimBatch selects schedulable targets by score then due time and
// moves them to crawling under the store lock.
func (s *Store) ClaimBatch(_ context.Context, limit, maxPerDomain int) ([]frontier.CrawlTarget, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	eligible := make([]frontier.CrawlTarget, 0, len(s.targets))
	for _, t := range s.targets {
		if t.Schedulable(now) {
			eligible = append(eligible, t)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		if !eligible[i].NextCrawlAt.Equal(eligible[j].NextCrawlAt) {
			return eligible[i].NextCrawlAt.Before(eligible[j].NextCrawlAt)
		}
		return eligible[i].URL < eligible[j].URL
	})

	claimed := make([]frontier.CrawlTarget, 0, limit)
	perDomain := make(map[string]int)
	for _, t := range eligible {
		if len(claimed) >= limit {
			break
		}
		if maxPerDomain > 0 && perDomain[t.Domain] >= maxPerDomain {
			continue
		}
		t.Status = frontier.StatusCrawling
		t.UpdatedAt = now
		s.targets[t.URL] = t
		perDomain[t.Domain]++
		claimed = append(claimed, t)
	}
	return claimed, nil
}

// RecordOutcome applies the outcome transition to a claimed row.
func (s *Store) RecordOutcome(_ context.Context, url string, outcome frontier.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[url]
	if !ok {
		return frontier.ErrNotFound
	}
	next, err := frontier.ApplyOutcome(t, outcome, s.clock.Now(), s.policy)
	if err != nil {
		return err
	}
	s.targets[url] = next
	return nil
}

// SweepExpiredLeases requeues crawling rows claimed before olderThan.
func (s *Store) SweepExpiredLeases(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	reclaimed := 0
	for url, t := range s.targets {
		if t.Status != frontier.StatusCrawling || !t.UpdatedAt.Before(olderThan) {
			continue
		}
		next, err := frontier.ReclaimExpired(t, now, s.policy)
		if err != nil {
			return reclaimed, err
		}
		s.targets[url] = next
		reclaimed++
	}
	return reclaimed, nil
}

// Get fetches one target by URL.
func (s *Store) Get(_ context.Context, url string) (frontier.CrawlTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[url]
	if !ok {
		return frontier.CrawlTarget{}, frontier.ErrNotFound
	}
	return t, nil
}

// Stats counts rows by status.
func (s *Store) Stats(_ context.Context) (frontier.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	stats := frontier.Stats{ByStatus: make(map[frontier.Status]int)}
	domains := make(map[string]struct{})
	for _, t := range s.targets {
		stats.ByStatus[t.Status]++
		domains[t.Domain] = struct{}{}
		if t.Schedulable(now) {
			stats.Claimable++
		}
	}
	stats.Domains = len(domains)
	return stats, nil
}
