package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Feeds      FeedsConfig      `yaml:"feeds" mapstructure:"feeds"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Stats      StatsConfig      `yaml:"stats" mapstructure:"stats"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	S3         S3Config         `yaml:"s3" mapstructure:"s3"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the article store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Database    string `yaml:"database" mapstructure:"database"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FeedSource is one RSS feed and the category label it assigns.
type FeedSource struct {
	Category string `yaml:"category" mapstructure:"category"`
	URL      string `yaml:"url" mapstructure:"url"`
}

// FeedsConfig configures the feed collector.
type FeedsConfig struct {
	File        string       `yaml:"file" mapstructure:"file"`
	Sources     []FeedSource `yaml:"sources" mapstructure:"sources"`
	TimeoutSecs int          `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string       `yaml:"user_agent" mapstructure:"user_agent"`
}

// ExtractConfig configures the text extractor pass.
type ExtractConfig struct {
	TimeoutSecs         int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent           string   `yaml:"user_agent" mapstructure:"user_agent"`
	Selectors           []string `yaml:"selectors" mapstructure:"selectors"`
	MinWords            int      `yaml:"min_words" mapstructure:"min_words"`
	FallbackMinWords    int      `yaml:"fallback_min_words" mapstructure:"fallback_min_words"`
	EnoughBlocks        int      `yaml:"enough_blocks" mapstructure:"enough_blocks"`
	PolitenessDelayMS   int      `yaml:"politeness_delay_ms" mapstructure:"politeness_delay_ms"`
	ReadabilityFallback bool     `yaml:"readability_fallback" mapstructure:"readability_fallback"`
	ExcludePaths        []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Concurrency         int      `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize           int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EnrichConfig configures the enrichment pass.
type EnrichConfig struct {
	MaxInputChars     int     `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	CircuitThreshold  int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize         int     `yaml:"batch_size" mapstructure:"batch_size"`
}

// StatsConfig configures the aggregation surface.
type StatsConfig struct {
	Boilerplate []string `yaml:"boilerplate" mapstructure:"boilerplate"`
	LatestLimit int      `yaml:"latest_limit" mapstructure:"latest_limit"`
}

// RedisConfig configures the optional cross-run seen set.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTLHours  int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// S3Config configures article exports.
type S3Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Region string `yaml:"region" mapstructure:"region"`
}

// ServerConfig configures the statistics API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinSample            int     `yaml:"min_sample" mapstructure:"min_sample"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrowserUserAgent is sent when fetching article pages.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// DefaultFeeds are the Times of India feeds collected when none are configured.
var DefaultFeeds = []FeedSource{
	{Category: "Sports", URL: "https://timesofindia.indiatimes.com/rssfeeds/4719148.cms"},
	{Category: "Tech", URL: "https://timesofindia.indiatimes.com/rssfeeds/66949542.cms"},
	{Category: "India", URL: "https://timesofindia.indiatimes.com/rssfeeds/29570699.cms"},
	{Category: "Auto", URL: "https://timesofindia.indiatimes.com/rssfeeds/733242.cms"},
}

// DefaultSelectors are the extraction tiers, most specific layout first.
var DefaultSelectors = []string{
	"div.Normal p",
	"div._s30J.clearfix p",
	"div[class*='content'] p",
	"article p",
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEWSSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default still need to be known for AutomaticEnv to
	// reach Unmarshal.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "newsstream.db")
	v.SetDefault("store.database", "newsstream_db")
	v.SetDefault("store.collection", "articles")
	v.SetDefault("feeds.sources", feedDefaults())
	v.SetDefault("feeds.timeout_secs", 10)
	v.SetDefault("feeds.user_agent", "newsstream/1.0")
	v.SetDefault("extract.timeout_secs", 10)
	v.SetDefault("extract.user_agent", BrowserUserAgent)
	v.SetDefault("extract.selectors", DefaultSelectors)
	v.SetDefault("extract.min_words", 6)
	v.SetDefault("extract.fallback_min_words", 10)
	v.SetDefault("extract.enough_blocks", 5)
	v.SetDefault("extract.politeness_delay_ms", 500)
	v.SetDefault("extract.readability_fallback", false)
	v.SetDefault("extract.exclude_paths", []string{"/videos/*", "/**/photostory/*", "/web-stories/*"})
	v.SetDefault("extract.max_body_bytes", 5<<20)
	v.SetDefault("extract.concurrency", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("enrich.max_input_chars", 5000)
	v.SetDefault("enrich.temperature", 0.2)
	v.SetDefault("enrich.max_tokens", 1024)
	v.SetDefault("enrich.requests_per_second", 2.0)
	v.SetDefault("enrich.retry_attempts", 3)
	v.SetDefault("enrich.circuit_threshold", 5)
	v.SetDefault("enrich.concurrency", 1)
	v.SetDefault("stats.boilerplate", []string{"No article content was provided", "TOI Tech Desk"})
	v.SetDefault("stats.latest_limit", 10)
	v.SetDefault("redis.key_prefix", "newsstream:seen:")
	v.SetDefault("redis.ttl_hours", 72)
	v.SetDefault("s3.prefix", "exports")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_sample", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	if cfg.Feeds.File != "" {
		sources, err := LoadFeedsFile(cfg.Feeds.File)
		if err != nil {
			return nil, err
		}
		cfg.Feeds.Sources = sources
	}

	return &cfg, nil
}

// envOnlyKeys lists the settings that have no default.
var envOnlyKeys = []string{
	"store.max_conns",
	"store.min_conns",
	"feeds.file",
	"extract.batch_size",
	"anthropic.key",
	"anthropic.base_url",
	"enrich.batch_size",
	"redis.addr",
	"redis.password",
	"redis.db",
	"s3.bucket",
	"s3.region",
	"monitoring.webhook_url",
}

func feedDefaults() []map[string]string {
	out := make([]map[string]string, 0, len(DefaultFeeds))
	for _, f := range DefaultFeeds {
		out = append(out, map[string]string{"category": f.Category, "url": f.URL})
	}
	return out
}

// Validate checks the settings a command needs before any pass begins.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres", "mongo":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "collect":
		errs = append(errs, c.validateFeeds()...)
	case "extract":
		errs = append(errs, c.validateExtract()...)
	case "enrich":
		errs = append(errs, c.validateEnrich()...)
	case "run":
		errs = append(errs, c.validateFeeds()...)
		errs = append(errs, c.validateExtract()...)
		errs = append(errs, c.validateEnrich()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required")
		}
	case "migrate", "rescrape", "stats":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateFeeds() []string {
	var errs []string
	if len(c.Feeds.Sources) == 0 {
		errs = append(errs, "feeds.sources must not be empty")
	}
	for i, f := range c.Feeds.Sources {
		if strings.TrimSpace(f.URL) == "" {
			errs = append(errs, fmt.Sprintf("feeds.sources[%d].url is required", i))
		}
	}
	if c.Feeds.TimeoutSecs <= 0 {
		errs = append(errs, "feeds.timeout_secs must be > 0")
	}
	return errs
}

func (c *Config) validateExtract() []string {
	var errs []string
	if len(c.Extract.Selectors) == 0 {
		errs = append(errs, "extract.selectors must not be empty")
	}
	if c.Extract.TimeoutSecs <= 0 {
		errs = append(errs, "extract.timeout_secs must be > 0")
	}
	if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 32 {
		errs = append(errs, "extract.concurrency must be between 1 and 32")
	}
	return errs
}

func (c *Config) validateEnrich() []string {
	var errs []string
	if c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Anthropic.Model == "" {
		errs = append(errs, "anthropic.model is required")
	}
	if c.Enrich.MaxInputChars <= 0 {
		errs = append(errs, "enrich.max_input_chars must be > 0")
	}
	if c.Enrich.Temperature < 0 || c.Enrich.Temperature > 1 {
		errs = append(errs, "enrich.temperature must be between 0 and 1")
	}
	if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 32 {
		errs = append(errs, "enrich.concurrency must be between 1 and 32")
	}
	return errs
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
