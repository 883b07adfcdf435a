package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FeedbackConfig tunes the click-through aggregation loop.
type FeedbackConfig struct {
	// Interval between aggregation passes.
	Interval time.Duration
	// Window is how far back each pass looks for search/click evidence.
	Window time.Duration
	// Decay is the moving-average retention factor (0 < Decay < 1):
	// new_score = Decay*old + (1-Decay)*observed_ctr. With no evidence
	// the score simply decays, so stale relations lose confidence over
	// time even without negative signal.
	Decay float64
	// MinScore floors decayed scores so edges stay auditable, never
	// deleted.
	MinScore float64
}

// DefaultFeedbackConfig returns the production aggregation settings.
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		Interval: 15 * time.Minute,
		Window:   24 * time.Hour,
		Decay:    0.9,
		MinScore: 0.01,
	}
}

// Aggregator periodically folds click-through statistics into the
// scores of auto_stats relations. Manual and auto_nlp edges are never
// touched automatically.
type Aggregator struct {
	relations RelationStore
	events    EventStore
	clock     Clock
	logger    *zap.Logger
	cfg       FeedbackConfig
}

// NewAggregator constructs an Aggregator.
func NewAggregator(relations RelationStore, events EventStore, clock Clock, cfg FeedbackConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		relations: relations,
		events:    events,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run aggregates on a fixed interval until the context finishes.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("feedback aggregation failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single aggregation pass.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	now := a.clock.Now()
	stats, err := a.events.ExpansionStats(ctx, now.Add(-a.cfg.Window))
	if err != nil {
		return fmt.Errorf("load expansion stats: %w", err)
	}
	byEdge := make(map[[2]string]ExpansionStat, len(stats))
	for _, stat := range stats {
		byEdge[[2]string{stat.Source, stat.Target}] = stat
	}

	relations, err := a.relations.ByOrigin(ctx, OriginAutoStats)
	if err != nil {
		return fmt.Errorf("load auto_stats relations: %w", err)
	}

	rescored := 0
	for _, rel := range relations {
		stat := byEdge[[2]string{rel.Source, rel.Target}]
		score := a.nextScore(rel.Score, stat)
		if score == rel.Score {
			continue
		}
		if err := a.relations.UpdateScore(ctx, rel.Source, rel.Target, score, now); err != nil {
			return fmt.Errorf("rescore %s -> %s: %w", rel.Source, rel.Target, err)
		}
		rescored++
	}
	if rescored > 0 {
		a.logger.Info("rescored relations from click feedback",
			zap.Int("rescored", rescored),
			zap.Int("evidence_edges", len(stats)),
		)
	}
	return nil
}

// nextScore applies the decayed moving average for one edge.
func (a *Aggregator) nextScore(old float64, stat ExpansionStat) float64 {
	decayed := old * a.cfg.Decay
	if stat.Searches > 0 {
		ctr := float64(stat.Clicks) / float64(stat.Searches)
		if ctr > 1 {
			ctr = 1
		}
		decayed += (1 - a.cfg.Decay) * ctr
	}
	if decayed < a.cfg.MinScore {
		return a.cfg.MinScore
	}
	if decayed > 1 {
		return 1
	}
	return decayed
}
