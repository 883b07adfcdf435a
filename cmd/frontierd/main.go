// Package main wires together the frontier service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minasearch/frontier/internal/api"
	"github.com/minasearch/frontier/internal/clock/system"
	"github.com/minasearch/frontier/internal/config"
	"github.com/minasearch/frontier/internal/dispatcher"
	collyfetcher "github.com/minasearch/frontier/internal/fetcher/colly"
	"github.com/minasearch/frontier/internal/frontier"
	frontiermem "github.com/minasearch/frontier/internal/frontier/memory"
	frontierpg "github.com/minasearch/frontier/internal/frontier/postgres"
	"github.com/minasearch/frontier/internal/id/uuid"
	indexmem "github.com/minasearch/frontier/internal/index/memory"
	"github.com/minasearch/frontier/internal/logging"
	"github.com/minasearch/frontier/internal/metrics"
	memorypublisher "github.com/minasearch/frontier/internal/publisher/memory"
	pubsubpublisher "github.com/minasearch/frontier/internal/publisher/pubsub"
	"github.com/minasearch/frontier/internal/ratelimit"
	"github.com/minasearch/frontier/internal/search"
	searchmem "github.com/minasearch/frontier/internal/search/memory"
	searchpg "github.com/minasearch/frontier/internal/search/postgres"
	"github.com/minasearch/frontier/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	policy := policyFromConfig(cfg.Crawler)

	var (
		frontierStore frontier.Store
		relations     search.RelationStore
		events        search.EventStore
	)
	switch cfg.DB.Backend {
	case "postgres":
		pgFrontier, err := frontierpg.NewStore(ctx, frontierpg.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		}, policy, clock)
		if err != nil {
			logger.Fatal("frontier store init failed", zap.Error(err))
		}
		defer pgFrontier.Close()
		if err := pgFrontier.EnsureSchema(ctx); err != nil {
			logger.Fatal("frontier schema init failed", zap.Error(err))
		}
		pgSearch, err := searchpg.NewStore(ctx, searchpg.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			logger.Fatal("search store init failed", zap.Error(err))
		}
		defer pgSearch.Close()
		if err := pgSearch.EnsureSchema(ctx); err != nil {
			logger.Fatal("search schema init failed", zap.Error(err))
		}
		frontierStore = pgFrontier
		relations = pgSearch
		events = pgSearch
	default:
		frontierStore = frontiermem.NewStore(policy, clock)
		relations = searchmem.NewRelationStore()
		events = searchmem.NewEventStore()
	}

	var publisher frontier.Publisher
	if cfg.PubSub.Enabled {
		pub, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer pub.Stop()
		publisher = pub
	} else {
		publisher = memorypublisher.New()
	}

	resolver := search.NewResolver(relations, cfg.Search.MinEdgeScore, logger.Named("resolver"))
	searchSvc := search.NewService(
		resolver,
		events,
		indexmem.New(),
		idGen,
		clock,
		search.ServiceConfig{
			MaxDepth:       cfg.Search.MaxDepth,
			MaxExpansions:  cfg.Search.MaxExpansions,
			DefaultLimit:   cfg.Search.DefaultLimit,
			MaxResultLimit: cfg.Search.MaxLimit,
		},
		logger.Named("search"),
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.FetchTimeout,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DomainRPS,
		DefaultBurst: cfg.Crawler.DomainBurst,
	})
	workerCfg := worker.Config{
		BatchSize:    cfg.Crawler.BatchSize,
		PerDomainMax: cfg.Crawler.PerDomainMax,
		MaxDepth:     cfg.Crawler.MaxDepth,
		PollInterval: cfg.Crawler.PollInterval,
		Topic:        cfg.PubSub.TopicName,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			frontierStore,
			fetcher,
			publisher,
			limiter,
			policy,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	sweeper := frontier.NewSweeper(
		frontierStore,
		clock,
		logger.Named("sweeper"),
		cfg.Crawler.LeaseTimeout,
		cfg.Crawler.SweepInterval,
	)
	var aggregator *search.Aggregator
	if cfg.Feedback.Enabled {
		aggregator = search.NewAggregator(relations, events, clock, search.FeedbackConfig{
			Interval: cfg.Feedback.Interval,
			Window:   cfg.Feedback.Window,
			Decay:    cfg.Feedback.Decay,
			MinScore: cfg.Feedback.MinScore,
		}, logger.Named("feedback"))
	}
	dispatch := dispatcher.New(workers, sweeper, aggregator)

	apiServer := api.NewServer(searchSvc, relations, frontierStore, policy, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		if err := dispatch.Run(ctx); err != nil {
			logger.Error("dispatcher error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// policyFromConfig overlays configured knobs onto the default policy.
func policyFromConfig(c config.CrawlerConfig) frontier.Policy {
	p := frontier.DefaultPolicy()
	if c.BaseScore > 0 {
		p.BaseScore = c.BaseScore
	}
	if c.DepthPenalty > 0 {
		p.DepthPenalty = c.DepthPenalty
	}
	if c.ChangeBoost > 0 {
		p.ChangeBoost = c.ChangeBoost
	}
	if c.ErrorDecay > 0 && c.ErrorDecay < 1 {
		p.ErrorDecay = c.ErrorDecay
	}
	if c.MaxErrors > 0 {
		p.MaxErrors = c.MaxErrors
	}
	if c.RevisitBase > 0 {
		p.RevisitBase = c.RevisitBase
	}
	if c.RevisitMin > 0 {
		p.RevisitMin = c.RevisitMin
	}
	if c.RevisitMax > 0 {
		p.RevisitMax = c.RevisitMax
	}
	if c.ErrorBackoff > 0 {
		p.ErrorBackoffBase = c.ErrorBackoff
	}
	if c.MaxErrBackoff > 0 {
		p.ErrorBackoffMax = c.MaxErrBackoff
	}
	return p
}
