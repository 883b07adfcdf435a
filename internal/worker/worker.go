// Package worker implements the claim/fetch/report crawl loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/minasearch/frontier/internal/frontier"
	"github.com/minasearch/frontier/internal/metrics"
	"github.com/minasearch/frontier/internal/ratelimit"
)

// Config controls Worker behavior.
type Config struct {
	BatchSize    int
	PerDomainMax int
	// MaxDepth bounds link discovery; links below a claimed target at
	// this depth are dropped.
	MaxDepth     int
	PollInterval time.Duration
	Topic        string
}

// Worker repeatedly claims schedulable targets, fetches them, and
// reports outcomes back to the frontier. Discovered links are
// registered for future crawls.
type Worker struct {
	store     frontier.Store
	fetcher   frontier.Fetcher
	publisher frontier.Publisher
	limiter   *ratelimit.Limiter
	detector  frontier.TrapDetector
	policy    frontier.Policy
	clock     frontier.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	store frontier.Store,
	fetcher frontier.Fetcher,
	publisher frontier.Publisher,
	limiter *ratelimit.Limiter,
	policy frontier.Policy,
	clock frontier.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.PerDomainMax <= 0 {
		cfg.PerDomainMax = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		limiter:   limiter,
		detector:  frontier.DefaultTrapDetector(),
		policy:    policy,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, claiming and processing batches until the context
// finishes. Empty batches back off for one poll interval.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("claim batch failed", zap.Error(err))
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce claims and processes a single batch, returning the number of
// targets processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.store.ClaimBatch(ctx, w.cfg.BatchSize, w.cfg.PerDomainMax)
	if err != nil {
		return 0, err
	}
	for _, target := range batch {
		metrics.ObserveClaimed(target.Domain, 1)
		w.processTarget(ctx, target)
	}
	return len(batch), nil
}

func (w *Worker) processTarget(ctx context.Context, target frontier.CrawlTarget) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, target.Domain); err != nil {
			// Shutdown mid-claim: the sweeper requeues the row later.
			w.logger.Warn("politeness wait aborted",
				zap.String("url", target.URL),
				zap.Error(err),
			)
			return
		}
	}

	result, err := w.fetcher.Fetch(ctx, target)
	if err != nil {
		w.logger.Warn("fetch failed",
			zap.String("url", target.URL),
			zap.Error(err),
		)
		result = frontier.FetchResult{Outcome: frontier.TransientError(err.Error())}
	}

	w.report(ctx, target.URL, result.Outcome)

	if result.Outcome.Kind == frontier.OutcomeSuccess {
		w.registerLinks(ctx, target, result.Links)
		if result.Outcome.Changed {
			w.publishIndexEvent(ctx, target, result)
		}
	}
}

func (w *Worker) report(ctx context.Context, url string, outcome frontier.Outcome) {
	if err := w.store.RecordOutcome(ctx, url, outcome); err != nil {
		if errors.Is(err, frontier.ErrNotClaimed) {
			// Lease already swept; the retry is someone else's now.
			w.logger.Debug("stale outcome dropped", zap.String("url", url))
			return
		}
		w.logger.Error("record outcome failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveOutcome(string(outcome.Kind))
}

// registerLinks inserts discovered links as pending targets. Trap-like
// URLs and links beyond the depth bound are dropped.
func (w *Worker) registerLinks(ctx context.Context, parent frontier.CrawlTarget, links []string) {
	if len(links) == 0 {
		return
	}
	depth := parent.Depth + 1
	if w.cfg.MaxDepth > 0 && depth > w.cfg.MaxDepth {
		return
	}
	now := w.clock.Now()
	targets := make([]frontier.CrawlTarget, 0, len(links))
	for _, link := range links {
		if w.detector.Suspicious(link) {
			w.logger.Debug("trap-like link dropped",
				zap.String("parent", parent.URL),
				zap.String("link", link),
			)
			continue
		}
		target, err := frontier.NewTarget(link, depth, w.policy, now)
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return
	}
	inserted, err := w.store.Register(ctx, targets)
	if err != nil {
		w.logger.Error("register links failed",
			zap.String("parent", parent.URL),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveRegistered(inserted)
	if inserted > 0 {
		w.logger.Debug("links registered",
			zap.String("parent", parent.URL),
			zap.Int("inserted", inserted),
		)
	}
}

func (w *Worker) publishIndexEvent(ctx context.Context, target frontier.CrawlTarget, result frontier.FetchResult) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"url":        target.URL,
		"domain":     target.Domain,
		"title":      result.Title,
		"fetched_at": w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("publish index event failed",
			zap.String("url", target.URL),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("index event published",
		zap.String("url", target.URL),
		zap.String("domain", target.Domain),
	)
}
