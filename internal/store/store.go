// Package store persists articles and their lifecycle flags.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newsstream/internal/model"
)

// ErrNotFound is returned when an update or lookup matches no article.
var ErrNotFound = eris.New("store: article not found")

// Store defines the persistence interface for the ingestion passes and the
// read-only statistics surface.
type Store interface {
	// Collector
	UpsertStub(ctx context.Context, a *model.Article) (bool, error)
	GetArticleByURL(ctx context.Context, url string) (*model.Article, error)

	// Extractor
	ListPendingExtraction(ctx context.Context, limit int) ([]model.Article, error)
	SaveArticleText(ctx context.Context, id, text string) error
	MarkScrapeFailed(ctx context.Context, id string) error
	ResetForRescrape(ctx context.Context, url string) error

	// Enrichment
	ListPendingEnrichment(ctx context.Context, limit int) ([]model.Article, error)
	SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error)

	// Statistics
	CategoryBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error)
	SentimentBreakdown(ctx context.Context, f CleanFilter) ([]model.CountBucket, error)
	LatestClean(ctx context.Context, f CleanFilter, n int) ([]model.ArticleDigest, error)
	ListClean(ctx context.Context, f CleanFilter) ([]model.Article, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultBoilerplate lists placeholder summaries excluded from statistics.
var DefaultBoilerplate = []string{
	"No article content was provided",
	"TOI Tech Desk",
}

// categoryGroupExpr groups predicted categories under their display label.
var categoryGroupExpr = fmt.Sprintf(`CASE WHEN predicted_category = '%s' THEN '%s' ELSE predicted_category END`,
	model.CategoryUnknown, model.DisplayCategory(model.CategoryUnknown))

// DefaultLatestLimit is the number of articles returned by LatestClean when
// the caller passes a non-positive n.
const DefaultLatestLimit = 10

// CleanFilter selects enriched articles whose summary is informative:
// processed, non-empty, and free of any boilerplate phrase (case-insensitive).
type CleanFilter struct {
	Boilerplate []string
}

// DefaultCleanFilter returns the filter used by the dashboard.
func DefaultCleanFilter() CleanFilter {
	return CleanFilter{Boilerplate: DefaultBoilerplate}
}

// Pattern returns the boilerplate phrases as one case-insensitive regular
// expression, or "" when there are none.
func (f CleanFilter) Pattern() string {
	parts := make([]string, 0, len(f.Boilerplate))
	for _, p := range f.Boilerplate {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, regexp.QuoteMeta(p))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "|")
}

// Matches applies the filter to an in-memory article.
func (f CleanFilter) Matches(a model.Article) bool {
	if !a.IsProcessed() || strings.TrimSpace(a.Summary) == "" {
		return false
	}
	lower := strings.ToLower(a.Summary)
	for _, p := range f.Boilerplate {
		if p = strings.TrimSpace(p); p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return false
		}
	}
	return true
}

// likeArgs returns one escaped LIKE argument per boilerplate phrase.
func (f CleanFilter) likeArgs() []string {
	var args []string
	for _, p := range f.Boilerplate {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
		args = append(args, "%"+r.Replace(strings.ToLower(p))+"%")
	}
	return args
}

func notFound(entity, key string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, key)
}
