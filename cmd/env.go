package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/config"
	"github.com/sells-group/newsstream/internal/db"
	"github.com/sells-group/newsstream/internal/enrich"
	"github.com/sells-group/newsstream/internal/feed"
	"github.com/sells-group/newsstream/internal/fetcher"
	"github.com/sells-group/newsstream/internal/pipeline"
	"github.com/sells-group/newsstream/internal/resilience"
	"github.com/sells-group/newsstream/internal/scrape"
	"github.com/sells-group/newsstream/internal/seen"
	"github.com/sells-group/newsstream/internal/store"
	"github.com/sells-group/newsstream/pkg/anthropic"
)

// passFlags are the overrides shared by the pass commands.
type passFlags struct {
	limit       int
	concurrency int
}

// pipelineEnv holds the store and the pipeline built around it.
type pipelineEnv struct {
	Store    store.Store
	Seen     seen.Set
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Seen != nil {
		_ = pe.Seen.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured backend and applies its schema.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "newsstream.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	case "mongo":
		st, err = store.NewMongo(ctx, c.Store.DatabaseURL, store.MongoConfig{
			Database:   c.Store.Database,
			Collection: c.Store.Collection,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initSeen connects the Redis seen set when an address is configured.
func initSeen(ctx context.Context, c *config.Config) (seen.Set, error) {
	if c.Redis.Addr == "" {
		return seen.Nop{}, nil
	}
	return seen.NewRedis(ctx, seen.Options{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.Redis.KeyPrefix,
		TTL:       time.Duration(c.Redis.TTLHours) * time.Hour,
	})
}

func newCollector(c *config.Config) *feed.Collector {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Feeds.UserAgent,
		Timeout:   time.Duration(c.Feeds.TimeoutSecs) * time.Second,
	})
	sources := make([]feed.Source, 0, len(c.Feeds.Sources))
	for _, s := range c.Feeds.Sources {
		sources = append(sources, feed.Source{Category: s.Category, URL: s.URL})
	}
	return feed.NewCollector(f, sources, len(sources))
}

func newExtractor(c *config.Config) *scrape.Chain {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.Extract.UserAgent,
		Timeout:      time.Duration(c.Extract.TimeoutSecs) * time.Second,
		MaxBodyBytes: c.Extract.MaxBodyBytes,
		HostInterval: time.Duration(c.Extract.PolitenessDelayMS) * time.Millisecond,
	})
	strategies := []scrape.Strategy{
		scrape.NewSelectorStrategy(scrape.SelectorOptions{
			Selectors:        c.Extract.Selectors,
			MinWords:         c.Extract.MinWords,
			FallbackMinWords: c.Extract.FallbackMinWords,
			EnoughBlocks:     c.Extract.EnoughBlocks,
		}),
	}
	if c.Extract.ReadabilityFallback {
		strategies = append(strategies, scrape.ReadabilityStrategy{})
	}
	return scrape.NewChain(scrape.NewPathMatcher(c.Extract.ExcludePaths), f, strategies...)
}

func newEnricher(c *config.Config) *enrich.Enricher {
	client := anthropic.NewClient(anthropic.Options{
		APIKey:  c.Anthropic.Key,
		BaseURL: c.Anthropic.BaseURL,
		Timeout: 60 * time.Second,
	})
	retry := resilience.DefaultRetryConfig()
	if c.Enrich.RetryAttempts > 0 {
		retry.MaxAttempts = c.Enrich.RetryAttempts
	}
	return enrich.New(client, enrich.Options{
		Model:         c.Anthropic.Model,
		MaxTokens:     c.Enrich.MaxTokens,
		Temperature:   c.Enrich.Temperature,
		MaxInputChars: c.Enrich.MaxInputChars,
		Retry:         retry,
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "anthropic",
			FailureThreshold: c.Enrich.CircuitThreshold,
		}),
	})
}

// initPipeline validates cfg for mode, opens the store and builds only the
// components the mode needs. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, flags passFlags) (*pipelineEnv, error) {
	applyPassFlags(cfg, mode, flags)
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}

	var (
		col pipeline.Collector
		ext pipeline.Extractor
		enr pipeline.Enricher
	)
	if mode == "collect" || mode == "run" {
		col = newCollector(cfg)
		env.Seen, err = initSeen(ctx, cfg)
		if err != nil {
			env.Close()
			return nil, err
		}
	}
	if mode == "extract" || mode == "run" || mode == "rescrape" {
		ext = newExtractor(cfg)
	}
	if mode == "enrich" || mode == "run" {
		enr = newEnricher(cfg)
	}

	env.Pipeline = pipeline.New(st, col, ext, enr, env.Seen, pipeline.Options{
		ExtractConcurrency: cfg.Extract.Concurrency,
		ExtractBatch:       cfg.Extract.BatchSize,
		EnrichConcurrency:  cfg.Enrich.Concurrency,
		EnrichBatch:        cfg.Enrich.BatchSize,
		EnrichRPS:          cfg.Enrich.RequestsPerSecond,
	})

	zap.L().Debug("pipeline initialized",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", cfg.Redis.Addr != ""),
	)
	return env, nil
}

// applyPassFlags lets command-line flags override the configured batch size
// and concurrency of the passes a mode runs.
func applyPassFlags(c *config.Config, mode string, flags passFlags) {
	extract := mode == "extract" || mode == "run"
	enrichMode := mode == "enrich" || mode == "run"
	if flags.limit > 0 {
		if extract {
			c.Extract.BatchSize = flags.limit
		}
		if enrichMode {
			c.Enrich.BatchSize = flags.limit
		}
	}
	if flags.concurrency > 0 {
		if extract {
			c.Extract.Concurrency = flags.concurrency
		}
		if enrichMode {
			c.Enrich.Concurrency = flags.concurrency
		}
	}
}

func statsFilter(c *config.Config) store.CleanFilter {
	if len(c.Stats.Boilerplate) == 0 {
		return store.DefaultCleanFilter()
	}
	return store.CleanFilter{Boilerplate: c.Stats.Boilerplate}
}
