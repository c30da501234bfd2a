package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newsstream/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_UpsertStub_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO articles .* ON CONFLICT \(url\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "A", "http://x/1", "Sports", "Mon, 02 Jan 2026", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Article{Title: "A", URL: "http://x/1", FeedCategory: "Sports", PublishedAt: "Mon, 02 Jan 2026"}
	inserted, err := s.UpsertStub(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertStub_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	a := &model.Article{Title: "A", URL: "http://x/1"}
	inserted, err := s.UpsertStub(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Empty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertStub_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO articles`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := s.UpsertStub(context.Background(), &model.Article{URL: "http://x/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert stub")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetArticleByURL_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, title, url, .* FROM articles WHERE url = \$1`).
		WithArgs("http://missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetArticleByURL(context.Background(), "http://missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArticleText(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE articles SET article_text = \$1, processed = false, scrape_status = ''`).
		WithArgs("body", pgxmock.AnyArg(), "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveArticleText(context.Background(), "id-1", "body"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkScrapeFailed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE articles SET scrape_status = \$1`).
		WithArgs("failed", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkScrapeFailed(context.Background(), "gone")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEnrichment_Conditional(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	e := model.Enrichment{Summary: "s", Category: model.CategoryUnknown, Sentiment: model.SentimentNeutral}

	mock.ExpectExec(`(?s)UPDATE articles SET summary = \$1, .* processed = true, .* WHERE id = \$5 AND processed = false AND article_text <> ''`).
		WithArgs("s", "Unknown", "Neutral", pgxmock.AnyArg(), "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE articles SET summary`).
		WithArgs("s", "Unknown", "Neutral", pgxmock.AnyArg(), "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err := s.SaveEnrichment(context.Background(), "id-1", e)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.SaveEnrichment(context.Background(), "id-1", e)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResetForRescrape(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE articles SET article_text = '', scrape_status = '', processed = false`).
		WithArgs(pgxmock.AnyArg(), "http://x/1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.ResetForRescrape(context.Background(), "http://x/1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CategoryBreakdown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"grp", "n"}).
		AddRow("Author Opinion", int64(2)).
		AddRow("Political", int64(1))
	mock.ExpectQuery(`SELECT CASE WHEN predicted_category = 'Unknown' THEN 'Author Opinion' .* summary NOT ILIKE \$1 .* summary NOT ILIKE \$2 .* GROUP BY grp`).
		WithArgs("%no article content was provided%", "%toi tech desk%").
		WillReturnRows(rows)

	got, err := s.CategoryBreakdown(context.Background(), DefaultCleanFilter())
	require.NoError(t, err)
	assert.Equal(t, []model.CountBucket{
		{Key: "Author Opinion", Count: 2},
		{Key: "Political", Count: 1},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestClean(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"title", "summary", "predicted_category", "sentiment"}).
		AddRow("A", "s", "Unknown", "Neutral")
	mock.ExpectQuery(`SELECT title, summary, predicted_category, sentiment FROM articles WHERE .* ORDER BY created_at DESC, seq DESC LIMIT \$3`).
		WithArgs("%no article content was provided%", "%toi tech desk%", 10).
		WillReturnRows(rows)

	got, err := s.LatestClean(context.Background(), DefaultCleanFilter(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.CategoryUnknown, got[0].PredictedCategory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS articles .* seq +BIGSERIAL.* ADD COLUMN IF NOT EXISTS seq BIGSERIAL`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCleanClause_Numbering(t *testing.T) {
	where, args := pgCleanClause(CleanFilter{Boilerplate: []string{"a", "b"}}, 3)
	assert.Contains(t, where, `summary NOT ILIKE $3`)
	assert.Contains(t, where, `summary NOT ILIKE $4`)
	assert.Equal(t, []any{"%a%", "%b%"}, args)
}
