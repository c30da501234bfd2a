package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/newsstream/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL UNIQUE,
	rss_category       TEXT NOT NULL DEFAULT '',
	published_at       TEXT NOT NULL DEFAULT '',
	article_text       TEXT NOT NULL DEFAULT '',
	scrape_status      TEXT NOT NULL DEFAULT '',
	processed          INTEGER,
	summary            TEXT NOT NULL DEFAULT '',
	predicted_category TEXT NOT NULL DEFAULT '',
	sentiment          TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_pending_text ON articles(created_at) WHERE article_text = '';
CREATE INDEX IF NOT EXISTS idx_articles_processed ON articles(processed, created_at);
`

const articleColumns = `id, title, url, rss_category, published_at, article_text, scrape_status, processed, summary, predicted_category, sentiment, created_at, updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertStub(ctx context.Context, a *model.Article) (bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, url, rss_category, published_at, article_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		id, a.Title, a.URL, a.FeedCategory, a.PublishedAt, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert stub %s", a.URL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return true, nil
}

func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = ?`, url)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, notFound("url", url)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get article %s", url)
	}
	return a, nil
}

func (s *SQLiteStore) ListPendingExtraction(ctx context.Context, limit int) ([]model.Article, error) {
	return s.listArticles(ctx, `article_text = ''`, `created_at, rowid`, limit)
}

func (s *SQLiteStore) ListPendingEnrichment(ctx context.Context, limit int) ([]model.Article, error) {
	return s.listArticles(ctx, `processed = 0 AND article_text <> ''`, `created_at, rowid`, limit)
}

func (s *SQLiteStore) SaveArticleText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET article_text = ?, processed = 0, scrape_status = '', updated_at = ? WHERE id = ?`,
		text, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save article text %s", id)
	}
	return checkRowsAffected(res, "article", id)
}

func (s *SQLiteStore) MarkScrapeFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET scrape_status = ?, updated_at = ? WHERE id = ?`,
		model.ScrapeStatusFailed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark scrape failed %s", id)
	}
	return checkRowsAffected(res, "article", id)
}

func (s *SQLiteStore) ResetForRescrape(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET article_text = '', scrape_status = '', processed = 0, updated_at = ? WHERE url = ?`,
		time.Now().UTC(), url,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset article %s", url)
	}
	return checkRowsAffected(res, "url", url)
}

func (s *SQLiteStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET summary = ?, predicted_category = ?, sentiment = ?, processed = 1, updated_at = ?
		 WHERE id = ? AND processed = 0 AND article_text <> ''`,
		e.Summary, string(e.Category), string(e.Sentiment), time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: save enrichment %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) CategoryBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	return s.breakdown(ctx, f, categoryGroupExpr)
}

func (s *SQLiteStore) SentimentBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	return s.breakdown(ctx, f, `sentiment`)
}

func (s *SQLiteStore) LatestClean(ctx context.Context, f CleanFilter, n int) ([]model.ArticleDigest, error) {
	if n <= 0 {
		n = DefaultLatestLimit
	}
	where, args := sqliteCleanClause(f)
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx,
		`SELECT title, summary, predicted_category, sentiment FROM articles WHERE `+where+
			` ORDER BY created_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest clean")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ArticleDigest
	for rows.Next() {
		var d model.ArticleDigest
		if err := rows.Scan(&d.Title, &d.Summary, &d.PredictedCategory, &d.Sentiment); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan digest")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate digests")
}

func (s *SQLiteStore) ListClean(ctx context.Context, f CleanFilter) ([]model.Article, error) {
	where, args := sqliteCleanClause(f)
	return s.listArticles(ctx, where, `created_at, rowid`, 0, args...)
}

func (s *SQLiteStore) breakdown(ctx context.Context, f CleanFilter, keyExpr string) ([]model.CountBucket, error) {
	where, args := sqliteCleanClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyExpr+` AS grp, COUNT(*) AS n FROM articles WHERE `+where+
			` GROUP BY grp ORDER BY n DESC, grp`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: breakdown")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CountBucket
	for rows.Next() {
		var b model.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate buckets")
}

func (s *SQLiteStore) listArticles(ctx context.Context, where, orderBy string, limit int, args ...any) ([]model.Article, error) {
	q := `SELECT ` + articleColumns + ` FROM articles WHERE ` + where + ` ORDER BY ` + orderBy
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list articles")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan article")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate articles")
}

// sqliteCleanClause renders the clean filter as a WHERE fragment.
func sqliteCleanClause(f CleanFilter) (string, []any) {
	clauses := []string{`processed = 1`, `summary <> ''`}
	var args []any
	for _, p := range f.likeArgs() {
		clauses = append(clauses, `LOWER(summary) NOT LIKE ? ESCAPE '\'`)
		args = append(args, p)
	}
	return strings.Join(clauses, " AND "), args
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var processed sql.NullBool
	var category, sentiment string

	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.FeedCategory, &a.PublishedAt, &a.ArticleText,
		&a.ScrapeStatus, &processed, &a.Summary, &category, &sentiment, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if processed.Valid {
		a.Processed = model.Bool(processed.Bool)
	}
	a.PredictedCategory = model.Category(category)
	a.Sentiment = model.Sentiment(sentiment)
	return &a, nil
}
