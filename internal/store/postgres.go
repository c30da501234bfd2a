package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/newsstream/internal/db"
	"github.com/sells-group/newsstream/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	seq                BIGSERIAL,
	title              TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL UNIQUE,
	rss_category       TEXT NOT NULL DEFAULT '',
	published_at       TEXT NOT NULL DEFAULT '',
	article_text       TEXT NOT NULL DEFAULT '',
	scrape_status      TEXT NOT NULL DEFAULT '',
	processed          BOOLEAN,
	summary            TEXT NOT NULL DEFAULT '',
	predicted_category TEXT NOT NULL DEFAULT '',
	sentiment          TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE articles ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS idx_articles_pending_text ON articles(created_at) WHERE article_text = '';
CREATE INDEX IF NOT EXISTS idx_articles_pending_enrich ON articles(created_at) WHERE processed = false;
CREATE INDEX IF NOT EXISTS idx_articles_clean_recent ON articles(created_at DESC) WHERE processed = true;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertStub(ctx context.Context, a *model.Article) (bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO articles (id, title, url, rss_category, published_at, article_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, '', $6, $7)
		 ON CONFLICT (url) DO NOTHING`,
		id, a.Title, a.URL, a.FeedCategory, a.PublishedAt, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert stub %s", a.URL)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return true, nil
}

func (s *PostgresStore) GetArticleByURL(ctx context.Context, url string) (*model.Article, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE url = $1`, url)
	a, err := scanPgArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("url", url)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get article %s", url)
	}
	return a, nil
}

func (s *PostgresStore) ListPendingExtraction(ctx context.Context, limit int) ([]model.Article, error) {
	return s.listArticles(ctx, `article_text = ''`, limit)
}

func (s *PostgresStore) ListPendingEnrichment(ctx context.Context, limit int) ([]model.Article, error) {
	return s.listArticles(ctx, `processed = false AND article_text <> ''`, limit)
}

func (s *PostgresStore) SaveArticleText(ctx context.Context, id, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET article_text = $1, processed = false, scrape_status = '', updated_at = $2 WHERE id = $3`,
		text, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save article text %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("article", id)
	}
	return nil
}

func (s *PostgresStore) MarkScrapeFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET scrape_status = $1, updated_at = $2 WHERE id = $3`,
		model.ScrapeStatusFailed, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark scrape failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("article", id)
	}
	return nil
}

func (s *PostgresStore) ResetForRescrape(ctx context.Context, url string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET article_text = '', scrape_status = '', processed = false, updated_at = $1 WHERE url = $2`,
		time.Now().UTC(), url,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset article %s", url)
	}
	if tag.RowsAffected() == 0 {
		return notFound("url", url)
	}
	return nil
}

func (s *PostgresStore) SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET summary = $1, predicted_category = $2, sentiment = $3, processed = true, updated_at = $4
		 WHERE id = $5 AND processed = false AND article_text <> ''`,
		e.Summary, string(e.Category), string(e.Sentiment), time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: save enrichment %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CategoryBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	return s.breakdown(ctx, f, categoryGroupExpr)
}

func (s *PostgresStore) SentimentBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error) {
	return s.breakdown(ctx, f, `sentiment`)
}

func (s *PostgresStore) LatestClean(ctx context.Context, f CleanFilter, n int) ([]model.ArticleDigest, error) {
	if n <= 0 {
		n = DefaultLatestLimit
	}
	where, args := pgCleanClause(f, 1)
	args = append(args, n)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT title, summary, predicted_category, sentiment FROM articles WHERE %s ORDER BY created_at DESC, seq DESC LIMIT $%d`,
			where, len(args)), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest clean")
	}
	defer rows.Close()

	var out []model.ArticleDigest
	for rows.Next() {
		var d model.ArticleDigest
		var category, sentiment string
		if err := rows.Scan(&d.Title, &d.Summary, &category, &sentiment); err != nil {
			return nil, eris.Wrap(err, "postgres: scan digest")
		}
		d.PredictedCategory = model.Category(category)
		d.Sentiment = model.Sentiment(sentiment)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate digests")
}

func (s *PostgresStore) ListClean(ctx context.Context, f CleanFilter) ([]model.Article, error) {
	where, args := pgCleanClause(f, 1)
	return s.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles WHERE `+where+` ORDER BY created_at, seq`, args...)
}

func (s *PostgresStore) breakdown(ctx context.Context, f CleanFilter, keyExpr string) ([]model.CountBucket, error) {
	where, args := pgCleanClause(f, 1)
	rows, err := s.pool.Query(ctx,
		`SELECT `+keyExpr+` AS grp, COUNT(*) AS n FROM articles WHERE `+where+
			` GROUP BY grp ORDER BY n DESC, grp`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: breakdown")
	}
	defer rows.Close()

	var out []model.CountBucket
	for rows.Next() {
		var b model.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate buckets")
}

func (s *PostgresStore) listArticles(ctx context.Context, where string, limit int) ([]model.Article, error) {
	q := `SELECT ` + articleColumns + ` FROM articles WHERE ` + where + ` ORDER BY created_at, seq`
	if limit > 0 {
		return s.queryArticles(ctx, q+` LIMIT $1`, limit)
	}
	return s.queryArticles(ctx, q)
}

func (s *PostgresStore) queryArticles(ctx context.Context, q string, args ...any) ([]model.Article, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list articles")
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		a, err := scanPgArticle(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan article")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate articles")
}

// pgCleanClause renders the clean filter as a WHERE fragment with
// placeholders numbered from start.
func pgCleanClause(f CleanFilter, start int) (string, []any) {
	clauses := []string{`processed = true`, `summary <> ''`}
	var args []any
	for i, p := range f.likeArgs() {
		clauses = append(clauses, fmt.Sprintf(`summary NOT ILIKE $%d ESCAPE '\'`, start+i))
		args = append(args, p)
	}
	return strings.Join(clauses, " AND "), args
}

func scanPgArticle(row pgx.Row) (*model.Article, error) {
	var a model.Article
	var category, sentiment string

	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.FeedCategory, &a.PublishedAt, &a.ArticleText,
		&a.ScrapeStatus, &a.Processed, &a.Summary, &category, &sentiment, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.PredictedCategory = model.Category(category)
	a.Sentiment = model.Sentiment(sentiment)
	return &a, nil
}
