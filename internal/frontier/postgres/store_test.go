package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/minasearch/frontier/internal/frontier"
)

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

var targetCols = []string{
	"url", "domain", "depth", "status", "score", "error_count", "blocked_reason",
	"last_crawled_at", "next_crawl_at", "deleted_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewStoreWithPool(mock, frontier.DefaultPolicy(), staticClock{now: now})
	require.NoError(t, err)
	return store, mock, now
}

func TestRegisterSkipsExistingRows(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)

	target, err := frontier.NewTarget("https://example.com", 0, frontier.DefaultPolicy(), now)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO crawl_targets").
		WithArgs(
			target.URL, target.Domain, target.Depth, target.Status, target.Score,
			target.ErrorCount, target.NextCrawlAt, target.CreatedAt, target.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.Register(context.Background(), []frontier.CrawlTarget{target})
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchMarksRowsCrawling(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)

	rows := pgxmock.NewRows(targetCols).
		AddRow("https://a.test/1", "a.test", 0, frontier.StatusPending, 100.0, 0, nil,
			nil, now, nil, now, now).
		AddRow("https://a.test/2", "a.test", 0, frontier.StatusDone, 100.0, 0, nil,
			nil, now, nil, now, now).
		AddRow("https://a.test/3", "a.test", 1, frontier.StatusError, 95.0, 1, nil,
			nil, now, nil, now, now).
		AddRow("https://b.test/1", "b.test", 2, frontier.StatusPending, 90.0, 0, nil,
			nil, now, nil, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM crawl_targets").
		WithArgs(now, 3*claimOverfetch).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE crawl_targets SET status = 'crawling'").
		WithArgs(now, []string{"https://a.test/1", "https://a.test/2", "https://b.test/1"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectCommit()

	batch, err := store.ClaimBatch(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for _, target := range batch {
		require.Equal(t, frontier.StatusCrawling, target.Status)
	}
	// Third a.test row was dropped by the per-domain cap.
	require.Equal(t, "https://b.test/1", batch[2].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchEmptyCommitsWithoutUpdate(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM crawl_targets").
		WithArgs(now, 5*claimOverfetch).
		WillReturnRows(pgxmock.NewRows(targetCols))
	mock.ExpectCommit()

	batch, err := store.ClaimBatch(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Empty(t, batch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeSuccess(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)
	policy := frontier.DefaultPolicy()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM crawl_targets WHERE url").
		WithArgs("https://example.com").
		WillReturnRows(pgxmock.NewRows(targetCols).
			AddRow("https://example.com", "example.com", 0, frontier.StatusCrawling, 100.0, 2, nil,
				nil, now, nil, now, now))
	crawledAt := now
	mock.ExpectExec("UPDATE crawl_targets").
		WithArgs(
			"https://example.com", frontier.StatusDone, policy.SuccessScore(0, false), 0,
			(*string)(nil), &crawledAt, now.Add(policy.RevisitInterval(100.0)), (*time.Time)(nil), now,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.RecordOutcome(context.Background(), "https://example.com", frontier.Success(false))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeDuplicateRollsBack(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM crawl_targets WHERE url").
		WithArgs("https://example.com").
		WillReturnRows(pgxmock.NewRows(targetCols).
			AddRow("https://example.com", "example.com", 0, frontier.StatusDone, 100.0, 0, nil,
				&now, now, nil, now, now))
	mock.ExpectRollback()

	err := store.RecordOutcome(context.Background(), "https://example.com", frontier.Success(false))
	require.ErrorIs(t, err, frontier.ErrNotClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredLeases(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockStore(t)
	policy := frontier.DefaultPolicy()
	cutoff := now.Add(-15 * time.Minute)

	mock.ExpectExec("UPDATE crawl_targets").
		WithArgs(policy.ErrorDecay, policy.MinScore, now.Add(policy.ErrorBackoff(1)), cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	reclaimed, err := store.SweepExpiredLeases(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, reclaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM crawl_targets WHERE url").
		WithArgs("https://missing.test").
		WillReturnRows(pgxmock.NewRows(targetCols))

	_, err := store.Get(context.Background(), "https://missing.test")
	require.ErrorIs(t, err, frontier.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
