package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newsstream/internal/config"
	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "test.db")},
		Feeds: config.FeedsConfig{Sources: config.DefaultFeeds, TimeoutSecs: 5},
		Extract: config.ExtractConfig{
			Selectors:   config.DefaultSelectors,
			TimeoutSecs: 5,
			Concurrency: 1,
		},
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"},
		Enrich:    config.EnrichConfig{MaxInputChars: 5000, Concurrency: 1},
		Server:    config.ServerConfig{Port: 8080},
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"collect", "extract", "enrich", "run", "rescrape", "serve", "export", "migrate", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "newsstream", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestPassCommands_Flags(t *testing.T) {
	for _, cmd := range []string{"collect", "extract", "enrich", "run"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flag := range []string{"limit", "concurrency"} {
			f := c.Flags().Lookup(flag)
			require.NotNil(t, f, "%s should have --%s", cmd, flag)
			assert.Equal(t, "0", f.DefValue)
		}
	}
}

func TestRunCommand_EveryFlag(t *testing.T) {
	f := runCmd.Flags().Lookup("every")
	require.NotNil(t, f)
	assert.Equal(t, "0s", f.DefValue)
	assert.Nil(t, collectCmd.Flags().Lookup("every"), "only run repeats")
}

func TestRescrapeCommand_Flags(t *testing.T) {
	require.NotNil(t, rescrapeCmd.Flags().Lookup("url"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestInitPipeline_EnrichFailsFastWithoutKey(t *testing.T) {
	old := cfg
	t.Cleanup(func() { cfg = old })
	cfg = testConfig(t)

	for _, mode := range []string{"enrich", "run"} {
		env, err := initPipeline(context.Background(), mode, passFlags{})
		assert.Nil(t, env)
		assert.ErrorContains(t, err, "anthropic.key is required", mode)
	}
}

func TestInitPipeline_Extract(t *testing.T) {
	old := cfg
	t.Cleanup(func() { cfg = old })
	cfg = testConfig(t)

	env, err := initPipeline(context.Background(), "extract", passFlags{limit: 7, concurrency: 3})
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Pipeline)
	assert.Equal(t, 7, cfg.Extract.BatchSize)
	assert.Equal(t, 3, cfg.Extract.Concurrency)
	assert.Zero(t, cfg.Enrich.BatchSize, "enrich settings untouched by an extract run")

	// No collector is wired for extract.
	_, err = env.Pipeline.CollectPass(context.Background())
	assert.Error(t, err)
}

func TestApplyPassFlags(t *testing.T) {
	c := testConfig(t)
	applyPassFlags(c, "run", passFlags{limit: 20, concurrency: 4})
	assert.Equal(t, 20, c.Extract.BatchSize)
	assert.Equal(t, 20, c.Enrich.BatchSize)
	assert.Equal(t, 4, c.Extract.Concurrency)
	assert.Equal(t, 4, c.Enrich.Concurrency)

	c = testConfig(t)
	applyPassFlags(c, "enrich", passFlags{})
	assert.Zero(t, c.Enrich.BatchSize)
	assert.Equal(t, 1, c.Enrich.Concurrency)
}

func TestInitStore(t *testing.T) {
	c := testConfig(t)
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.Close())

	c.Store.Driver = "cassandra"
	_, err = initStore(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitSeen_NopWithoutAddr(t *testing.T) {
	s, err := initSeen(context.Background(), testConfig(t))
	require.NoError(t, err)
	known, err := s.Seen(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestStatsFilter(t *testing.T) {
	c := testConfig(t)
	assert.Equal(t, store.DefaultCleanFilter(), statsFilter(c))

	c.Stats.Boilerplate = []string{"Staff Reporter"}
	assert.Equal(t, []string{"Staff Reporter"}, statsFilter(c).Boilerplate)
}

func TestPrintStats(t *testing.T) {
	ctx := context.Background()
	st, err := initStore(ctx, testConfig(t))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	seedEnriched(t, st, "https://example.com/1", model.Enrichment{Summary: "a", Category: model.CategoryUnknown, Sentiment: model.SentimentNeutral})
	seedEnriched(t, st, "https://example.com/2", model.Enrichment{Summary: "TOI Tech Desk", Category: model.CategoryPolitical, Sentiment: model.SentimentNegative})

	var buf bytes.Buffer
	require.NoError(t, printStats(ctx, &buf, st, store.DefaultCleanFilter(), false))
	out := buf.String()
	assert.Contains(t, out, "Author Opinion")
	assert.Contains(t, out, "Neutral")
	assert.NotContains(t, out, "Political")

	buf.Reset()
	require.NoError(t, printStats(ctx, &buf, st, store.DefaultCleanFilter(), true))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"_id": "Author Opinion"`)
}

func TestPrintReports(t *testing.T) {
	r := model.NewPassReport("extract", 2)
	r.Add(model.Succeeded(model.Article{URL: "https://example.com/ok"}, model.StateTextExtracted))
	r.Add(model.Failed(model.Article{URL: "https://example.com/bad"}, model.StateExtractionFailed, assert.AnError))
	r.Finish()

	var buf bytes.Buffer
	printReports(&buf, compact(r, nil))
	assert.Contains(t, buf.String(), "candidates=2 succeeded=1 skipped=0 failed=1")
	assert.Contains(t, buf.String(), "failed https://example.com/bad")
}

func seedEnriched(t *testing.T, st store.Store, url string, e model.Enrichment) {
	t.Helper()
	ctx := context.Background()
	a := model.Article{URL: url, Title: "t", FeedCategory: "India"}
	_, err := st.UpsertStub(ctx, &a)
	require.NoError(t, err)
	got, err := st.GetArticleByURL(ctx, url)
	require.NoError(t, err)
	require.NoError(t, st.SaveArticleText(ctx, got.ID, "body text"))
	applied, err := st.SaveEnrichment(ctx, got.ID, e)
	require.NoError(t, err)
	require.True(t, applied)
}
