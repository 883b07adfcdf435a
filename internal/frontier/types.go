// Package frontier defines the crawl frontier: the shared, durable set of
// URLs eligible for fetching, and the state machine every URL moves through.
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status represents the lifecycle state of a CrawlTarget.
type Status string

// Status values persisted in the frontier store.
const (
	StatusPending  Status = "pending"
	StatusCrawling Status = "crawling"
	StatusDone     Status = "done"
	StatusError    Status = "error"
	StatusBlocked  Status = "blocked"
	StatusDeleted  Status = "deleted"
)

// BlockedReason explains why a target was taken out of scheduling.
type BlockedReason string

// Blocked reason values. Empty means the target is not blocked.
const (
	BlockedRobotsTxt    BlockedReason = "robots_txt"
	BlockedInfiniteLoop BlockedReason = "infinite_loop"
	BlockedMaxErrors    BlockedReason = "max_errors"
	BlockedOther        BlockedReason = "other"
)

// Sentinel errors returned by stores and transition logic.
var (
	// ErrNotFound indicates the URL has never been registered.
	ErrNotFound = errors.New("crawl target not found")
	// ErrNotClaimed indicates an outcome arrived for a row that is no
	// longer in crawling status. Duplicate and delayed reports hit this;
	// callers treat it as a no-op.
	ErrNotClaimed = errors.New("crawl target is not claimed")
	// ErrInvalidTransition indicates a disallowed status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CrawlTarget is one row of the frontier, keyed by URL.
type CrawlTarget struct {
	URL           string        `json:"url"`
	Domain        string        `json:"domain"`
	Depth         int           `json:"depth"`
	Status        Status        `json:"status"`
	Score         float64       `json:"score"`
	ErrorCount    int           `json:"error_count"`
	BlockedReason BlockedReason `json:"blocked_reason,omitempty"`
	LastCrawledAt *time.Time    `json:"last_crawled_at,omitempty"`
	NextCrawlAt   time.Time     `json:"next_crawl_at"`
	DeletedAt     *time.Time    `json:"deleted_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewTarget builds a pending CrawlTarget for a freshly discovered URL.
// The domain is derived from the URL authority and the initial score
// follows the policy's depth curve.
func NewTarget(rawURL string, depth int, p Policy, now time.Time) (CrawlTarget, error) {
	if depth < 0 {
		return CrawlTarget{}, fmt.Errorf("depth must be >= 0, got %d", depth)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return CrawlTarget{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return CrawlTarget{}, fmt.Errorf("url %q is not an absolute http(s) url", rawURL)
	}
	return CrawlTarget{
		URL:         rawURL,
		Domain:      host,
		Depth:       depth,
		Status:      StatusPending,
		Score:       p.InitialScore(depth),
		NextCrawlAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Schedulable reports whether the target is eligible for claiming at now.
func (t CrawlTarget) Schedulable(now time.Time) bool {
	if t.DeletedAt != nil {
		return false
	}
	switch t.Status {
	case StatusPending, StatusDone, StatusError:
		return !t.NextCrawlAt.After(now)
	default:
		return false
	}
}

// Validate checks the invariants tied to status: blocked_reason is set
// iff blocked, deleted_at is set iff deleted.
func (t CrawlTarget) Validate() error {
	if (t.Status == StatusBlocked) != (t.BlockedReason != "") {
		return fmt.Errorf("target %s: blocked_reason %q does not match status %q", t.URL, t.BlockedReason, t.Status)
	}
	if (t.Status == StatusDeleted) != (t.DeletedAt != nil) {
		return fmt.Errorf("target %s: deleted_at does not match status %q", t.URL, t.Status)
	}
	if t.ErrorCount < 0 {
		return fmt.Errorf("target %s: negative error_count %d", t.URL, t.ErrorCount)
	}
	return nil
}

// CanTransition reports whether moving from s to next is a valid edge of
// the frontier state machine. Blocked and deleted are terminal here;
// unblocking is an operator action outside this interface.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusCrawling || next == StatusDeleted
	case StatusCrawling:
		return next == StatusDone || next == StatusError || next == StatusBlocked || next == StatusDeleted
	case StatusDone:
		return next == StatusCrawling || next == StatusDeleted
	case StatusError:
		return next == StatusCrawling || next == StatusBlocked || next == StatusDeleted
	default:
		return false
	}
}

// transition mutates the status after validating the edge.
func (t *CrawlTarget) transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, t.Status, next, t.URL)
	}
	t.Status = next
	return nil
}

// OutcomeKind discriminates fetch outcome variants.
type OutcomeKind string

// Outcome kinds reported by fetch workers.
const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeTransientError OutcomeKind = "transient_error"
	OutcomePermanentBlock OutcomeKind = "permanent_block"
	OutcomeNotFound       OutcomeKind = "not_found"
)

// Outcome is the result of one fetch attempt for a claimed target.
type Outcome struct {
	Kind    OutcomeKind
	Reason  string        // transient error description
	Blocked BlockedReason // set for permanent blocks
	Changed bool          // success only: content differs from the previous crawl
}

// Success reports a completed fetch. changed indicates the content hash
// moved since the last crawl, which raises revisit priority.
func Success(changed bool) Outcome {
	return Outcome{Kind: OutcomeSuccess, Changed: changed}
}

// TransientError reports a retryable failure.
func TransientError(reason string) Outcome {
	return Outcome{Kind: OutcomeTransientError, Reason: reason}
}

// PermanentBlock reports a non-retryable refusal such as robots.txt.
func PermanentBlock(reason BlockedReason) Outcome {
	if reason == "" {
		reason = BlockedOther
	}
	return Outcome{Kind: OutcomePermanentBlock, Blocked: reason}
}

// NotFound reports that the URL no longer exists and should be logically
// deleted.
func NotFound() Outcome {
	return Outcome{Kind: OutcomeNotFound}
}

// Stats summarizes the frontier for the read-only status endpoint.
type Stats struct {
	ByStatus  map[Status]int `json:"by_status"`
	Domains   int            `json:"domains"`
	Claimable int            `json:"claimable"`
}
