// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Search   SearchConfig   `mapstructure:"search"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. Backend selects
// the store implementation; "memory" runs everything in-process.
type DBConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CrawlerConfig governs the claim/fetch/report loop and scheduling
// policy.
type CrawlerConfig struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	PerDomainMax  int           `mapstructure:"per_domain_max"`
	MaxDepth      int           `mapstructure:"max_depth"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	LeaseTimeout  time.Duration `mapstructure:"lease_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// DomainRPS caps fetch attempts per domain per second.
	DomainRPS   float64 `mapstructure:"domain_rps"`
	DomainBurst int     `mapstructure:"domain_burst"`

	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`

	// Scheduling policy knobs; zero values fall back to the built-in
	// defaults.
	BaseScore     float64       `mapstructure:"base_score"`
	DepthPenalty  float64       `mapstructure:"depth_penalty"`
	ChangeBoost   float64       `mapstructure:"change_boost"`
	ErrorDecay    float64       `mapstructure:"error_decay"`
	MaxErrors     int           `mapstructure:"max_errors"`
	RevisitBase   time.Duration `mapstructure:"revisit_base"`
	RevisitMin    time.Duration `mapstructure:"revisit_min"`
	RevisitMax    time.Duration `mapstructure:"revisit_max"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff"`
	MaxErrBackoff time.Duration `mapstructure:"error_backoff_max"`
}

// SearchConfig bounds query expansion and result sizes.
type SearchConfig struct {
	MaxDepth      int     `mapstructure:"max_depth"`
	MaxExpansions int     `mapstructure:"max_expansions"`
	MinEdgeScore  float64 `mapstructure:"min_edge_score"`
	DefaultLimit  int     `mapstructure:"default_limit"`
	MaxLimit      int     `mapstructure:"max_limit"`
}

// FeedbackConfig tunes the click-through aggregation loop.
type FeedbackConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
	Decay    float64       `mapstructure:"decay"`
	MinScore float64       `mapstructure:"min_score"`
}

// PubSubConfig holds metadata for indexing-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FRONTIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.backend", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.batch_size", 16)
	v.SetDefault("crawler.per_domain_max", 2)
	v.SetDefault("crawler.max_depth", 5)
	v.SetDefault("crawler.poll_interval", 2*time.Second)
	v.SetDefault("crawler.lease_timeout", 10*time.Minute)
	v.SetDefault("crawler.sweep_interval", time.Minute)
	v.SetDefault("crawler.domain_rps", 1.0)
	v.SetDefault("crawler.domain_burst", 1)
	v.SetDefault("crawler.user_agent", "minasearch-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.fetch_timeout", 15*time.Second)
	v.SetDefault("search.max_depth", 2)
	v.SetDefault("search.max_expansions", 10)
	v.SetDefault("search.min_edge_score", 0.05)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("feedback.enabled", true)
	v.SetDefault("feedback.interval", 15*time.Minute)
	v.SetDefault("feedback.window", 24*time.Hour)
	v.SetDefault("feedback.decay", 0.9)
	v.SetDefault("feedback.min_score", 0.01)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.backend is postgres")
		}
	default:
		return fmt.Errorf("db.backend must be memory or postgres, got %q", c.DB.Backend)
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.PerDomainMax <= 0 {
		return fmt.Errorf("crawler.per_domain_max must be > 0")
	}
	if c.Crawler.DomainRPS <= 0 {
		return fmt.Errorf("crawler.domain_rps must be > 0")
	}
	if c.Search.MaxDepth <= 0 {
		return fmt.Errorf("search.max_depth must be > 0")
	}
	if c.Search.MaxExpansions <= 0 {
		return fmt.Errorf("search.max_expansions must be > 0")
	}
	if c.Feedback.Enabled {
		if c.Feedback.Decay <= 0 || c.Feedback.Decay >= 1 {
			return fmt.Errorf("feedback.decay must be in (0, 1)")
		}
		if c.Feedback.Interval <= 0 {
			return fmt.Errorf("feedback.interval must be > 0")
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}
