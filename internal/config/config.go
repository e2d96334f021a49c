package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// Config holds the full application configuration. It is loaded once at
// startup and never reloaded.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Sources   []SourceConfig  `yaml:"sources" mapstructure:"sources"`
	Cadences  []model.Cadence `yaml:"cadences" mapstructure:"cadences"`
	Keywords  KeywordConfig   `yaml:"keywords" mapstructure:"keywords"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Fallback  FallbackConfig  `yaml:"fallback" mapstructure:"fallback"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Alerts    AlertConfig     `yaml:"alerts" mapstructure:"alerts"`
	Health    HealthConfig    `yaml:"health" mapstructure:"health"`
	Monitor   MonitorConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the control server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds the classifier/analyzer model settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// SourceConfig describes one named source a cadence can collect from.
type SourceConfig struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Kind        string `yaml:"kind" mapstructure:"kind"` // "jina_search" or "html"
	Query       string `yaml:"query,omitempty" mapstructure:"query"`
	Site        string `yaml:"site,omitempty" mapstructure:"site"`
	URL         string `yaml:"url,omitempty" mapstructure:"url"`
	Official    bool   `yaml:"official" mapstructure:"official"`
	ChannelHint string `yaml:"channel_hint,omitempty" mapstructure:"channel_hint"`
	MaxItems    int    `yaml:"max_items,omitempty" mapstructure:"max_items"`

	// HTML listing selectors (kind "html" only).
	ItemSelector  string `yaml:"item_selector,omitempty" mapstructure:"item_selector"`
	TitleSelector string `yaml:"title_selector,omitempty" mapstructure:"title_selector"`
	BodySelector  string `yaml:"body_selector,omitempty" mapstructure:"body_selector"`
	LinkSelector  string `yaml:"link_selector,omitempty" mapstructure:"link_selector"`
	DateSelector  string `yaml:"date_selector,omitempty" mapstructure:"date_selector"`
	DateLayout    string `yaml:"date_layout,omitempty" mapstructure:"date_layout"`
}

// KeywordConfig holds the category keyword sets and the urgency keywords.
type KeywordConfig struct {
	Categories map[string][]string `yaml:"categories" mapstructure:"categories"`
	Urgency    []string            `yaml:"urgency" mapstructure:"urgency"`
}

// ScoringWeights are the composite-score weights. They must sum to 1.0.
type ScoringWeights struct {
	Confidence      float64 `yaml:"confidence" mapstructure:"confidence"`
	Relevance       float64 `yaml:"relevance" mapstructure:"relevance"`
	Urgency         float64 `yaml:"urgency" mapstructure:"urgency"`
	MarketPotential float64 `yaml:"market_potential" mapstructure:"market_potential"`
	Feasibility     float64 `yaml:"feasibility" mapstructure:"feasibility"`
}

// ScoringConfig configures sub-score tables, priority thresholds and the validation gate.
type ScoringConfig struct {
	Weights         ScoringWeights                `yaml:"weights" mapstructure:"weights"`
	ChannelWeights  map[string]map[string]float64 `yaml:"channel_weights" mapstructure:"channel_weights"`
	ChannelDefaults map[string]float64            `yaml:"channel_defaults" mapstructure:"channel_defaults"`
	HighThreshold   float64                       `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64                       `yaml:"medium_threshold" mapstructure:"medium_threshold"`
	MinScore        float64                       `yaml:"min_score" mapstructure:"min_score"`
	MinConfidence   float64                       `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// FallbackConfig is the deterministic classification used when the classifier fails.
type FallbackConfig struct {
	Channel    string  `yaml:"channel" mapstructure:"channel"`
	Priority   string  `yaml:"priority" mapstructure:"priority"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence"`
}

// RetryConfig controls timeouts and retries for every external client call.
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs       int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-attempt timeout for external calls.
func (r RetryConfig) Timeout() time.Duration {
	if r.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSecs) * time.Second
}

// DedupConfig configures the deduplication window and enrichment batching.
type DedupConfig struct {
	WindowHours  int `yaml:"window_hours" mapstructure:"window_hours"`
	BatchSize    int `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelayMs int `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
}

// AlertConfig holds the per-run alert thresholds and optional webhook delivery.
type AlertConfig struct {
	HighPriorityMin    int     `yaml:"high_priority_min" mapstructure:"high_priority_min"`
	LowConfidenceRatio float64 `yaml:"low_confidence_ratio" mapstructure:"low_confidence_ratio"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// HealthConfig configures the health monitor cadence and freshness threshold.
type HealthConfig struct {
	IntervalSecs   int `yaml:"interval_secs" mapstructure:"interval_secs"`
	FreshnessHours int `yaml:"freshness_hours" mapstructure:"freshness_hours"`
}

// MonitorConfig configures the run-history summary shown by status.
type MonitorConfig struct {
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// SchedulerConfig configures the cron driver.
type SchedulerConfig struct {
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
	StopTimeoutSecs int    `yaml:"stop_timeout_secs" mapstructure:"stop_timeout_secs"`
}

// Location resolves the scheduler timezone, defaulting to UTC.
func (s SchedulerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		zap.L().Warn("config: unknown timezone, using UTC", zap.String("timezone", s.Timezone))
		return time.UTC
	}
	return loc
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AFH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "afh.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("scoring.weights.confidence", 0.25)
	v.SetDefault("scoring.weights.relevance", 0.25)
	v.SetDefault("scoring.weights.urgency", 0.2)
	v.SetDefault("scoring.weights.market_potential", 0.2)
	v.SetDefault("scoring.weights.feasibility", 0.1)
	v.SetDefault("scoring.high_threshold", 80)
	v.SetDefault("scoring.medium_threshold", 60)
	v.SetDefault("scoring.min_score", 30)
	v.SetDefault("scoring.min_confidence", 60)
	v.SetDefault("fallback.channel", "default")
	v.SetDefault("fallback.priority", "medium")
	v.SetDefault("fallback.confidence", 50)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.1)
	v.SetDefault("retry.timeout_secs", 30)
	v.SetDefault("dedup.window_hours", 24)
	v.SetDefault("dedup.batch_size", 10)
	v.SetDefault("dedup.batch_delay_ms", 1000)
	v.SetDefault("alerts.high_priority_min", 0)
	v.SetDefault("alerts.low_confidence_ratio", 0.5)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("health.interval_secs", 300)
	v.SetDefault("health.freshness_hours", 24)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.stop_timeout_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.applyTableDefaults()
	return &cfg, nil
}

// applyTableDefaults fills list- and map-valued sections that viper cannot
// express as flat defaults.
func (c *Config) applyTableDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	if len(c.Cadences) == 0 {
		c.Cadences = DefaultCadences()
	}
	if len(c.Keywords.Categories) == 0 {
		c.Keywords.Categories = DefaultCategoryKeywords()
	}
	if len(c.Keywords.Urgency) == 0 {
		c.Keywords.Urgency = DefaultUrgencyKeywords()
	}
	if len(c.Scoring.ChannelWeights) == 0 {
		c.Scoring.ChannelWeights = DefaultChannelWeights()
	}
	if len(c.Scoring.ChannelDefaults) == 0 {
		c.Scoring.ChannelDefaults = DefaultChannelMultipliers()
	}
}

// Validate checks cross-references between cadences and sources.
func (c *Config) Validate() error {
	var errs []string

	sources := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			errs = append(errs, "source with empty id")
			continue
		}
		if sources[s.ID] {
			errs = append(errs, "duplicate source id "+s.ID)
		}
		sources[s.ID] = true
	}

	names := make(map[string]bool, len(c.Cadences))
	for _, cd := range c.Cadences {
		if cd.Name == "" {
			errs = append(errs, "cadence with empty name")
			continue
		}
		if names[cd.Name] {
			errs = append(errs, "duplicate cadence "+cd.Name)
		}
		names[cd.Name] = true
		if cd.Enabled && cd.TriggerSpec == "" {
			errs = append(errs, "cadence "+cd.Name+" has no trigger_spec")
		}
		for _, id := range cd.Sources {
			if !sources[id] {
				errs = append(errs, "cadence "+cd.Name+" references unknown source "+id)
			}
		}
	}

	if c.Dedup.BatchSize <= 0 {
		errs = append(errs, "dedup.batch_size must be > 0")
	}
	if c.Dedup.WindowHours <= 0 {
		errs = append(errs, "dedup.window_hours must be > 0")
	}
	if !model.Priority(c.Fallback.Priority).Valid() {
		errs = append(errs, "fallback.priority must be low, medium or high")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SourceByID returns the source with the given id.
func (c *Config) SourceByID(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
