package frontier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sweepStore struct {
	Store
	cutoffs   []time.Time
	reclaimed int
	err       error
}

func (s *sweepStore) SweepExpiredLeases(_ context.Context, olderThan time.Time) (int, error) {
	s.cutoffs = append(s.cutoffs, olderThan)
	return s.reclaimed, s.err
}

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

func TestSweeperRunOnceUsesLeaseCutoff(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store := &sweepStore{reclaimed: 3}
	s := NewSweeper(store, staticClock{now: now}, zap.NewNop(), 15*time.Minute, time.Minute)

	reclaimed, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, reclaimed)
	require.Equal(t, []time.Time{now.Add(-15 * time.Minute)}, store.cutoffs)
}

func TestSweeperRunOnceZeroStaleRowsIsNoOp(t *testing.T) {
	t.Parallel()

	store := &sweepStore{}
	s := NewSweeper(store, staticClock{now: time.Now().UTC()}, zap.NewNop(), time.Minute, time.Minute)

	reclaimed, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, reclaimed)
}

func TestSweeperRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := &sweepStore{}
	s := NewSweeper(store, staticClock{now: time.Now().UTC()}, zap.NewNop(), time.Minute, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotEmpty(t, store.cutoffs)
}
