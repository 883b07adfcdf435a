// Package postgres provides the Postgres-backed frontier store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minasearch/frontier/internal/frontier"
)

// claimOverfetch multiplies the batch limit when selecting candidates,
// leaving headroom for rows dropped by the per-domain cap.
const claimOverfetch = 4

const targetColumns = `url, domain, depth, status, score, error_count, blocked_reason,
	last_crawled_at, next_crawl_at, deleted_at, created_at, updated_at`

// Config controls the Postgres connection pool for the frontier store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the subset of pgxpool.Pool the store needs. pgxmock
// satisfies it in tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements frontier.Store on Postgres. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent claimers never block on or
// double-claim each other's rows.
type Store struct {
	pool   pgxPool
	policy frontier.Policy
	clock  frontier.Clock
}

// NewStore connects a pool and returns a Store.
func NewStore(ctx context.Context, cfg Config, policy frontier.Policy, clock frontier.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, policy: policy, clock: clock}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily
// for testing).
func NewStoreWithPool(pool pgxPool, policy frontier.Policy, clock frontier.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, policy: policy, clock: clock}, nil
}

// EnsureSchema creates the crawl_targets table and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure frontier schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Register inserts targets not already present, leaving existing rows
// untouched.
func (s *Store) Register(ctx context.Context, targets []frontier.CrawlTarget) (int, error) {
	inserted := 0
	for _, t := range targets {
		tag, err := s.pool.Exec(ctx, `
INSERT INTO crawl_targets (url, domain, depth, status, score, error_count, next_crawl_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (url) DO NOTHING`,
			t.URL, t.Domain, t.Depth, t.Status, t.Score, t.ErrorCount, t.NextCrawlAt, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("register %s: %w", t.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ClaimBatch selects and locks schedulable rows, applies the per-domain
// cap, and transitions the survivors to crawling in one transaction.
func (s *Store) ClaimBatch(ctx context.Context, limit, maxPerDomain int) ([]frontier.CrawlTarget, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.clock.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, fmt.Sprintf(`
SELECT %s
FROM crawl_targets
WHERE status IN ('pending', 'done', 'error')
  AND next_crawl_at <= $1
  AND deleted_at IS NULL
ORDER BY score DESC, next_crawl_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`, targetColumns),
		now, limit*claimOverfetch,
	)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	candidates, err := scanTargets(rows)
	if err != nil {
		return nil, err
	}

	claimed := make([]frontier.CrawlTarget, 0, limit)
	urls := make([]string, 0, limit)
	perDomain := make(map[string]int)
	for _, t := range candidates {
		if len(claimed) >= limit {
			break
		}
		if maxPerDomain > 0 && perDomain[t.Domain] >= maxPerDomain {
			continue
		}
		t.Status = frontier.StatusCrawling
		t.UpdatedAt = now
		claimed = append(claimed, t)
		urls = append(urls, t.URL)
		perDomain[t.Domain]++
	}
	if len(claimed) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
UPDATE crawl_targets SET status = 'crawling', updated_at = $1 WHERE url = ANY($2)`,
		now, urls,
	); err != nil {
		return nil, fmt.Errorf("mark batch crawling: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// RecordOutcome locks the row, applies the outcome transition, and
// writes the result back.
func (s *Store) RecordOutcome(ctx context.Context, url string, outcome frontier.Outcome) error {
	now := s.clock.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outcome tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, fmt.Sprintf(`
SELECT %s FROM crawl_targets WHERE url = $1 FOR UPDATE`, targetColumns), url)
	current, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return frontier.ErrNotFound
		}
		return err
	}

	next, err := frontier.ApplyOutcome(current, outcome, now, s.policy)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE crawl_targets
SET status = $2,
    score = $3,
    error_count = $4,
    blocked_reason = $5,
    last_crawled_at = $6,
    next_crawl_at = $7,
    deleted_at = $8,
    updated_at = $9
WHERE url = $1`,
		next.URL, next.Status, next.Score, next.ErrorCount, nullableReason(next.BlockedReason),
		next.LastCrawledAt, next.NextCrawlAt, next.DeletedAt, next.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update outcome for %s: %w", url, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outcome tx: %w", err)
	}
	return nil
}

// SweepExpiredLeases requeues crawling rows whose claim predates
// olderThan, treating each stall as one error occurrence.
func (s *Store) SweepExpiredLeases(ctx context.Context, olderThan time.Time) (int, error) {
	now := s.clock.Now()
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_targets
SET status = 'error',
    error_count = error_count + 1,
    score = GREATEST(score * $1, $2),
    next_crawl_at = $3,
    updated_at = $3
WHERE status = 'crawling' AND updated_at < $4`,
		s.policy.ErrorDecay, s.policy.MinScore, now.Add(s.policy.ErrorBackoff(1)), olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Get fetches one target by URL.
func (s *Store) Get(ctx context.Context, url string) (frontier.CrawlTarget, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT %s FROM crawl_targets WHERE url = $1`, targetColumns), url)
	t, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return frontier.CrawlTarget{}, frontier.ErrNotFound
		}
		return frontier.CrawlTarget{}, err
	}
	return t, nil
}

// Stats aggregates status counts, distinct domains, and the claimable
// backlog.
func (s *Store) Stats(ctx context.Context) (frontier.Stats, error) {
	stats := frontier.Stats{ByStatus: make(map[frontier.Status]int)}

	rows, err := s.pool.Query(ctx, `
SELECT status, COUNT(*) FROM crawl_targets GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status frontier.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate status counts: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
SELECT COUNT(DISTINCT domain),
       COUNT(*) FILTER (
           WHERE status IN ('pending', 'done', 'error')
             AND next_crawl_at <= $1
             AND deleted_at IS NULL
       )
FROM crawl_targets`, s.clock.Now())
	if err := row.Scan(&stats.Domains, &stats.Claimable); err != nil {
		return stats, fmt.Errorf("scan frontier totals: %w", err)
	}
	return stats, nil
}

func scanTarget(row pgx.Row) (frontier.CrawlTarget, error) {
	var t frontier.CrawlTarget
	var blocked *string
	if err := row.Scan(
		&t.URL, &t.Domain, &t.Depth, &t.Status, &t.Score, &t.ErrorCount, &blocked,
		&t.LastCrawledAt, &t.NextCrawlAt, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return frontier.CrawlTarget{}, fmt.Errorf("scan crawl target: %w", err)
	}
	if blocked != nil {
		t.BlockedReason = frontier.BlockedReason(*blocked)
	}
	return t, nil
}

func scanTargets(rows pgx.Rows) ([]frontier.CrawlTarget, error) {
	defer rows.Close()
	var out []frontier.CrawlTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl targets: %w", err)
	}
	return out, nil
}

func nullableReason(r frontier.BlockedReason) *string {
	if r == "" {
		return nil
	}
	v := string(r)
	return &v
}
