package frontier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper recovers rows abandoned mid-claim. A worker that crashes
// leaves its rows in crawling; once the lease expires the sweeper
// requeues them as errors so another worker can retry.
type Sweeper struct {
	store    Store
	clock    Clock
	logger   *zap.Logger
	lease    time.Duration
	interval time.Duration
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store Store, clock Clock, logger *zap.Logger, lease, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		clock:    clock,
		logger:   logger,
		lease:    lease,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until the context finishes. Finding
// zero stale rows is the normal case.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("lease sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep pass and returns the reclaim count.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.lease)
	reclaimed, err := s.store.SweepExpiredLeases(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		s.logger.Warn("requeued stale claims",
			zap.Int("reclaimed", reclaimed),
			zap.Duration("lease", s.lease),
		)
	}
	return reclaimed, nil
}
