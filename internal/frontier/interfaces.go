package frontier

import (
	"context"
	"time"
)

// Store is the shared frontier table. It is the only mutable state the
// crawl workers coordinate through, so claiming and outcome recording
// must be atomic per row.
type Store interface {
	// Register inserts targets that are not already present. Existing
	// URLs are left untouched. Returns the number of rows inserted.
	Register(ctx context.Context, targets []CrawlTarget) (int, error)

	// ClaimBatch atomically selects up to limit schedulable targets,
	// ordered by score descending then next_crawl_at ascending, with at
	// most maxPerDomain per domain, and moves them to crawling. Rows
	// lost to a concurrent claimer are skipped. An empty batch is not
	// an error; callers poll.
	ClaimBatch(ctx context.Context, limit, maxPerDomain int) ([]CrawlTarget, error)

	// RecordOutcome applies a fetch outcome to a claimed row. Reports
	// for rows no longer in crawling return ErrNotClaimed and change
	// nothing.
	RecordOutcome(ctx context.Context, url string, outcome Outcome) error

	// SweepExpiredLeases requeues crawling rows whose claim is older
	// than olderThan, counting the stall as one error occurrence.
	// Returns the number of rows reclaimed.
	SweepExpiredLeases(ctx context.Context, olderThan time.Time) (int, error)

	// Get fetches a single target by URL, ErrNotFound when absent.
	Get(ctx context.Context, url string) (CrawlTarget, error)

	// Stats returns read-only frontier counters.
	Stats(ctx context.Context) (Stats, error)
}

// FetchResult is what the external fetcher hands back for one URL.
type FetchResult struct {
	Outcome Outcome
	Title   string
	Content []byte
	Links   []string
}

// Fetcher retrieves a URL. Implementations live outside this core; the
// frontier only consumes the result.
type Fetcher interface {
	Fetch(ctx context.Context, target CrawlTarget) (FetchResult, error)
}

// Publisher pushes indexing events for successfully fetched documents.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
