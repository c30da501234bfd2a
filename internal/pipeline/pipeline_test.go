package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/scrape"
	"github.com/sells-group/newsstream/internal/store"
)

// --- Mocks ---

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) Collect(ctx context.Context) ([]model.Article, *model.PassReport) {
	args := m.Called(ctx)
	var report *model.PassReport
	if r := args.Get(1); r != nil {
		report = r.(*model.PassReport)
	}
	return args.Get(0).([]model.Article), report
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Enrich(ctx context.Context, text string) (model.Enrichment, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(model.Enrichment), args.Error(1)
}

type mockSeen struct {
	mock.Mock
}

func (m *mockSeen) Seen(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

func (m *mockSeen) Mark(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *mockSeen) Close() error { return nil }

// --- Helpers ---

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func stub(url string) model.Article {
	return model.Article{Title: "title " + url, URL: url, FeedCategory: "India"}
}

func seed(t *testing.T, st store.Store, urls ...string) {
	t.Helper()
	for _, u := range urls {
		a := stub(u)
		_, err := st.UpsertStub(context.Background(), &a)
		require.NoError(t, err)
	}
}

func getArticle(t *testing.T, st store.Store, url string) *model.Article {
	t.Helper()
	a, err := st.GetArticleByURL(context.Background(), url)
	require.NoError(t, err)
	return a
}

// --- Collect ---

func TestCollectPass_PersistsNewStubs(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/old")

	col := new(mockCollector)
	col.On("Collect", mock.Anything).Return([]model.Article{stub("http://x/1"), stub("http://x/old")}, model.NewPassReport("collect", 1))

	p := New(st, col, nil, nil, nil, Options{})
	report, err := p.CollectPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Skipped())
	a := getArticle(t, st, "http://x/1")
	assert.Equal(t, model.StateDiscovered, model.StateOf(*a))
}

func TestCollectPass_Idempotent(t *testing.T) {
	st := newTestStore(t)
	col := new(mockCollector)
	col.On("Collect", mock.Anything).Return([]model.Article{stub("http://x/1"), stub("http://x/2")}, nil)

	p := New(st, col, nil, nil, nil, Options{})
	first, err := p.CollectPass(context.Background())
	require.NoError(t, err)
	second, err := p.CollectPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Succeeded())
	assert.Equal(t, 0, second.Succeeded())
	assert.Equal(t, 2, second.Skipped())

	pending, err := st.ListPendingExtraction(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCollectPass_SeenSetShortCircuits(t *testing.T) {
	st := newTestStore(t)
	col := new(mockCollector)
	col.On("Collect", mock.Anything).Return([]model.Article{stub("http://x/1"), stub("http://x/2")}, nil)

	s := new(mockSeen)
	s.On("Seen", mock.Anything, "http://x/1").Return(true, nil)
	s.On("Seen", mock.Anything, "http://x/2").Return(false, errors.New("redis down"))
	s.On("Mark", mock.Anything, "http://x/2").Return(nil)

	report, err := New(st, col, nil, nil, s, Options{}).CollectPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, 1, report.Succeeded())
	s.AssertNotCalled(t, "Mark", mock.Anything, "http://x/1")

	_, err = st.GetArticleByURL(context.Background(), "http://x/1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCollectPass_FeedFailuresReported(t *testing.T) {
	st := newTestStore(t)
	feeds := model.NewPassReport("collect", 2)
	feeds.Add(model.Outcome{Status: model.OutcomeSuccess, URL: "http://feed/a"})
	feeds.Add(model.Outcome{Status: model.OutcomeFailed, URL: "http://feed/b", Reason: "timeout"})

	col := new(mockCollector)
	col.On("Collect", mock.Anything).Return([]model.Article{stub("http://x/1")}, feeds)

	report, err := New(st, col, nil, nil, nil, Options{}).CollectPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 2, report.Candidates, "failed feeds count as candidates")
	assert.Equal(t, report.Candidates, report.Succeeded()+report.Skipped()+report.Failed())
}

func TestCollectPass_AllFeedsFailed(t *testing.T) {
	feeds := model.NewPassReport("collect", 2)
	feeds.Add(model.Outcome{Status: model.OutcomeFailed, URL: "http://feed/a", Reason: "timeout"})
	feeds.Add(model.Outcome{Status: model.OutcomeFailed, URL: "http://feed/b", Reason: "status 503"})

	col := new(mockCollector)
	col.On("Collect", mock.Anything).Return([]model.Article{}, feeds)

	report, err := New(newTestStore(t), col, nil, nil, nil, Options{}).CollectPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Failed())
	assert.LessOrEqual(t, report.Failed(), report.Candidates)
}

// --- Extract ---

func TestExtractPass_Outcomes(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/ok", "http://x/empty", "http://x/err", "http://x/videos/1")

	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, "http://x/ok").Return("body", nil)
	ext.On("Extract", mock.Anything, "http://x/empty").Return("", nil)
	ext.On("Extract", mock.Anything, "http://x/err").Return("", errors.New("status 404"))
	ext.On("Extract", mock.Anything, "http://x/videos/1").Return("", scrape.ErrExcluded)

	report, err := New(st, nil, ext, nil, nil, Options{ExtractConcurrency: 2}).ExtractPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Candidates)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	assert.Equal(t, 1, report.Skipped())

	ok := getArticle(t, st, "http://x/ok")
	assert.Equal(t, "body", ok.ArticleText)
	assert.Equal(t, model.StateTextExtracted, model.StateOf(*ok))
	require.NotNil(t, ok.Processed)
	assert.False(t, *ok.Processed)

	assert.Equal(t, model.StateExtractionFailed, model.StateOf(*getArticle(t, st, "http://x/empty")))
	assert.Equal(t, model.StateExtractionFailed, model.StateOf(*getArticle(t, st, "http://x/err")))
	assert.Equal(t, model.StateDiscovered, model.StateOf(*getArticle(t, st, "http://x/videos/1")),
		"skipped articles are not persisted as failures")
}

func TestExtractPass_EmptyCandidateSet(t *testing.T) {
	st := newTestStore(t)
	ext := new(mockExtractor)

	report, err := New(st, nil, ext, nil, nil, Options{}).ExtractPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, report.Outcomes)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestExtractPass_BatchLimit(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/1", "http://x/2", "http://x/3")

	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).Return("body", nil)

	report, err := New(st, nil, ext, nil, nil, Options{ExtractBatch: 2}).ExtractPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded())
	ext.AssertNumberOfCalls(t, "Extract", 2)
}

func TestExtractPass_NotConfigured(t *testing.T) {
	_, err := New(newTestStore(t), nil, nil, nil, nil, Options{}).ExtractPass(context.Background())
	require.Error(t, err)
}

// --- Enrich ---

func TestEnrichPass_Outcomes(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/good", "http://x/bad", "http://x/stub")
	ctx := context.Background()
	require.NoError(t, st.SaveArticleText(ctx, getArticle(t, st, "http://x/good").ID, "good text"))
	require.NoError(t, st.SaveArticleText(ctx, getArticle(t, st, "http://x/bad").ID, "bad text"))

	enr := new(mockEnricher)
	enr.On("Enrich", mock.Anything, "good text").
		Return(model.Enrichment{Summary: "s", Category: model.CategoryPolitical, Sentiment: model.SentimentNegative}, nil)
	enr.On("Enrich", mock.Anything, "bad text").
		Return(model.Enrichment{}, errors.New("enrich: reply does not match schema"))

	report, err := New(st, nil, nil, enr, nil, Options{}).EnrichPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates, "stubs without text are not candidates")
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Failed())

	good := getArticle(t, st, "http://x/good")
	assert.Equal(t, model.StateEnriched, model.StateOf(*good))
	assert.Equal(t, model.CategoryPolitical, good.PredictedCategory)

	bad := getArticle(t, st, "http://x/bad")
	assert.False(t, bad.IsProcessed())
	assert.Empty(t, bad.Summary)
	assert.Equal(t, model.StateTextExtracted, model.StateOf(*bad))

	// A second pass only retries the failure.
	enr2 := new(mockEnricher)
	enr2.On("Enrich", mock.Anything, "bad text").
		Return(model.Enrichment{Summary: "t", Category: model.CategoryEntertainment, Sentiment: model.SentimentPositive}, nil)
	report, err = New(st, nil, nil, enr2, nil, Options{}).EnrichPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Succeeded())
}

func TestEnrichPass_RateLimited(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/1")
	ctx := context.Background()
	require.NoError(t, st.SaveArticleText(ctx, getArticle(t, st, "http://x/1").ID, "text"))

	enr := new(mockEnricher)
	enr.On("Enrich", mock.Anything, "text").
		Return(model.Enrichment{Summary: "s", Category: model.CategoryUnknown, Sentiment: model.SentimentNeutral}, nil)

	p := New(st, nil, nil, enr, nil, Options{EnrichRPS: 100})
	require.NotNil(t, p.enrichLimiter)
	report, err := p.EnrichPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
}

func TestEnrichOne_RejectsIllegalTransition(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/stub")
	enr := new(mockEnricher)
	p := New(st, nil, nil, enr, nil, Options{})

	// No text yet: a stub cannot jump straight to enriched.
	out := p.enrichOne(context.Background(), *getArticle(t, st, "http://x/stub"))
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, model.StateDiscovered, out.State)
	assert.Contains(t, out.Reason, "illegal state transition")

	processed := true
	done := model.Article{ID: "id-9", URL: "http://x/done", ArticleText: "body", Processed: &processed}
	out = p.enrichOne(context.Background(), done)
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, model.StateEnriched, out.State)

	enr.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything)
}

func TestExtractOne_RejectsIllegalTransition(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/1")
	ctx := context.Background()
	require.NoError(t, st.SaveArticleText(ctx, getArticle(t, st, "http://x/1").ID, "kept text"))

	ext := new(mockExtractor)
	out := New(st, nil, ext, nil, nil, Options{}).extractOne(ctx, *getArticle(t, st, "http://x/1"))
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, model.StateTextExtracted, out.State)
	assert.Contains(t, out.Reason, "text_extracted -> text_extracted")
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)

	assert.Equal(t, "kept text", getArticle(t, st, "http://x/1").ArticleText)
}

// --- Rescrape ---

func TestRescrape_InvalidatesEnrichment(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/1")
	ctx := context.Background()
	a := getArticle(t, st, "http://x/1")
	require.NoError(t, st.SaveArticleText(ctx, a.ID, "old text"))
	_, err := st.SaveEnrichment(ctx, a.ID, model.Enrichment{Summary: "s", Category: model.CategoryPolitical, Sentiment: model.SentimentNeutral})
	require.NoError(t, err)

	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, "http://x/1").Return("new text", nil)

	out, err := New(st, nil, ext, nil, nil, Options{}).Rescrape(ctx, "http://x/1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, out.Status)

	got := getArticle(t, st, "http://x/1")
	assert.Equal(t, "new text", got.ArticleText)
	assert.Equal(t, model.StateTextExtracted, model.StateOf(*got))
}

func TestRescrape_Stub(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "http://x/1")

	ext := new(mockExtractor)
	ext.On("Extract", mock.Anything, "http://x/1").Return("text", nil)

	out, err := New(st, nil, ext, nil, nil, Options{}).Rescrape(context.Background(), "http://x/1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, out.Status)
	assert.Equal(t, model.StateTextExtracted, out.State)
}

func TestRescrape_UnknownURL(t *testing.T) {
	ext := new(mockExtractor)
	_, err := New(newTestStore(t), nil, ext, nil, nil, Options{}).Rescrape(context.Background(), "http://nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
