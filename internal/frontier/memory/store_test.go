package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minasearch/frontier/internal/frontier"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*Store, *fakeClock, frontier.Policy) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	policy := frontier.DefaultPolicy()
	return NewStore(policy, clock), clock, policy
}

func register(t *testing.T, s *Store, clock *fakeClock, policy frontier.Policy, urls ...string) {
	t.Helper()
	targets := make([]frontier.CrawlTarget, 0, len(urls))
	for _, u := range urls {
		target, err := frontier.NewTarget(u, 0, policy, clock.Now())
		require.NoError(t, err)
		targets = append(targets, target)
	}
	_, err := s.Register(context.Background(), targets)
	require.NoError(t, err)
}

func TestRegisterIsInsertIfAbsent(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()

	target, err := frontier.NewTarget("https://example.com", 0, policy, clock.Now())
	require.NoError(t, err)

	inserted, err := s.Register(ctx, []frontier.CrawlTarget{target})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	// Re-registering the same URL changes nothing, even with new depth.
	dup, err := frontier.NewTarget("https://example.com", 3, policy, clock.Now())
	require.NoError(t, err)
	inserted, err = s.Register(ctx, []frontier.CrawlTarget{dup})
	require.NoError(t, err)
	require.Equal(t, 0, inserted)

	got, err := s.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, 0, got.Depth)
}

func TestClaimBatchOrderAndDomainCap(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()

	seeds := []struct {
		url   string
		depth int
	}{
		{"https://a.test/1", 0}, // score 100
		{"https://a.test/2", 0}, // score 100
		{"https://a.test/3", 0}, // score 100
		{"https://b.test/1", 2}, // score 90
		{"https://c.test/1", 4}, // score 80
	}
	targets := make([]frontier.CrawlTarget, 0, len(seeds))
	for _, seed := range seeds {
		target, err := frontier.NewTarget(seed.url, seed.depth, policy, clock.Now())
		require.NoError(t, err)
		targets = append(targets, target)
	}
	_, err := s.Register(ctx, targets)
	require.NoError(t, err)

	batch, err := s.ClaimBatch(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	// Highest score first, at most 2 from a.test despite 3 eligible.
	var urls []string
	perDomain := map[string]int{}
	for _, target := range batch {
		urls = append(urls, target.URL)
		perDomain[target.Domain]++
		require.Equal(t, frontier.StatusCrawling, target.Status)
	}
	require.Equal(t, []string{"https://a.test/1", "https://a.test/2", "https://b.test/1", "https://c.test/1"}, urls)
	require.Equal(t, 2, perDomain["a.test"])

	// The skipped a.test row is still claimable.
	rest, err := s.ClaimBatch(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "https://a.test/3", rest[0].URL)
}

func TestClaimBatchEmptyWhenNothingDue(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()

	batch, err := s.ClaimBatch(ctx, 10, 2)
	require.NoError(t, err)
	require.Empty(t, batch)

	register(t, s, clock, policy, "https://example.com")
	batch, err = s.ClaimBatch(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Everything is claimed now; a second caller gets nothing.
	batch, err = s.ClaimBatch(ctx, 10, 2)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestConcurrentClaimersNeverOverlap(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()

	targets := make([]frontier.CrawlTarget, 0, 50)
	for i := range 50 {
		u := fmt.Sprintf("https://site%d.test/page/%d", i%10, i)
		target, err := frontier.NewTarget(u, 0, policy, clock.Now())
		require.NoError(t, err)
		targets = append(targets, target)
	}
	_, err := s.Register(ctx, targets)
	require.NoError(t, err)

	const claimers = 8
	results := make([][]frontier.CrawlTarget, claimers)
	var wg sync.WaitGroup
	for i := range claimers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			batch, err := s.ClaimBatch(ctx, 10, 10)
			require.NoError(t, err)
			results[idx] = batch
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for _, batch := range results {
		for _, target := range batch {
			seen[target.URL]++
		}
	}
	for url, count := range seen {
		require.Equal(t, 1, count, "url %s claimed %d times", url, count)
	}
}

func TestRecordOutcomeLifecycle(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()
	register(t, s, clock, policy, "https://example.com")

	batch, err := s.ClaimBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, s.RecordOutcome(ctx, "https://example.com", frontier.Success(true)))
	got, err := s.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, frontier.StatusDone, got.Status)
	require.NoError(t, got.Validate())

	// Duplicate report is a reported no-op.
	err = s.RecordOutcome(ctx, "https://example.com", frontier.Success(true))
	require.ErrorIs(t, err, frontier.ErrNotClaimed)

	err = s.RecordOutcome(ctx, "https://unknown.test", frontier.Success(false))
	require.ErrorIs(t, err, frontier.ErrNotFound)
}

func TestSweepExpiredLeases(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()
	register(t, s, clock, policy, "https://stale.test", "https://fresh.test")

	batch, err := s.ClaimBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	stale := batch[0].URL

	clock.Advance(30 * time.Minute)
	batch, err = s.ClaimBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Only the first claim is past the 15 minute lease.
	reclaimed, err := s.SweepExpiredLeases(ctx, clock.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	got, err := s.Get(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, frontier.StatusError, got.Status)
	require.Equal(t, 1, got.ErrorCount)

	// Second sweep finds nothing; error_count stays at exactly 1.
	reclaimed, err = s.SweepExpiredLeases(ctx, clock.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, reclaimed)
	got, err = s.Get(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, 1, got.ErrorCount)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, clock, policy := newStore(t)
	ctx := context.Background()
	register(t, s, clock, policy, "https://a.test/1", "https://a.test/2", "https://b.test/1")

	batch, err := s.ClaimBatch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, s.RecordOutcome(ctx, batch[0].URL, frontier.NotFound()))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ByStatus[frontier.StatusPending])
	require.Equal(t, 1, stats.ByStatus[frontier.StatusDeleted])
	require.Equal(t, 2, stats.Domains)
	require.Equal(t, 2, stats.Claimable)
}
