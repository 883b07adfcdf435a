// Package dispatcher manages the background loops of the service.
package dispatcher

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/minasearch/frontier/internal/frontier"
	"github.com/minasearch/frontier/internal/search"
	"github.com/minasearch/frontier/internal/worker"
)

// Dispatcher fans out the crawl workers and the periodic loops
// (lease sweeper, click-feedback aggregator) under one context.
type Dispatcher struct {
	workers    []*worker.Worker
	sweeper    *frontier.Sweeper
	aggregator *search.Aggregator
}

// New creates a Dispatcher. sweeper and aggregator may be nil.
func New(workers []*worker.Worker, sweeper *frontier.Sweeper, aggregator *search.Aggregator) *Dispatcher {
	return &Dispatcher{
		workers:    workers,
		sweeper:    sweeper,
		aggregator: aggregator,
	}
}

// Run starts all loops and blocks until the context finishes and every
// loop has drained. Context cancellation is a clean shutdown, not an
// error.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, w := range d.workers {
		w := w
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	if d.sweeper != nil {
		g.Go(func() error {
			return d.sweeper.Run(ctx)
		})
	}
	if d.aggregator != nil {
		g.Go(func() error {
			return d.aggregator.Run(ctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
