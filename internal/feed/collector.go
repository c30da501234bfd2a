// Package feed turns RSS feeds into article stubs.
package feed

import (
	"bytes"
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/newsstream/internal/fetcher"
	"github.com/sells-group/newsstream/internal/model"
)

// Source is one feed and the category label its entries carry.
type Source struct {
	Category string
	URL      string
}

// Collector fetches a fixed list of feeds and emits deduplicated stubs.
type Collector struct {
	fetcher     fetcher.Fetcher
	sources     []Source
	concurrency int
}

// NewCollector creates a Collector over sources, fetched through f.
func NewCollector(f fetcher.Fetcher, sources []Source, concurrency int) *Collector {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Collector{fetcher: f, sources: sources, concurrency: concurrency}
}

// Collect fetches every feed and returns one stub per distinct link, in
// source order then entry order. A failing feed is recorded in the report and
// skipped; it never aborts the others.
func (c *Collector) Collect(ctx context.Context) ([]model.Article, *model.PassReport) {
	report := model.NewPassReport("collect", len(c.sources))
	defer report.Finish()

	items := make([][]*gofeed.Item, len(c.sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, src := range c.sources {
		g.Go(func() error {
			parsed, err := c.fetchFeed(gCtx, src)
			if err != nil {
				zap.L().Warn("feed: fetch failed, skipping",
					zap.String("category", src.Category),
					zap.String("url", src.URL),
					zap.Error(err),
				)
				report.Add(model.Outcome{Status: model.OutcomeFailed, URL: src.URL, Title: src.Category, Reason: err.Error()})
				return nil
			}
			items[i] = parsed
			report.Add(model.Outcome{Status: model.OutcomeSuccess, URL: src.URL, Title: src.Category})
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var stubs []model.Article
	for i, src := range c.sources {
		for _, item := range items[i] {
			a, ok := stubFromItem(src, item)
			if !ok {
				continue
			}
			if _, dup := seen[a.URL]; dup {
				continue
			}
			seen[a.URL] = struct{}{}
			stubs = append(stubs, a)
		}
	}

	zap.L().Info("feed: collected",
		zap.Int("feeds", len(c.sources)),
		zap.Int("feeds_failed", report.Failed()),
		zap.Int("stubs", len(stubs)),
	)
	return stubs, report
}

func (c *Collector) fetchFeed(ctx context.Context, src Source) ([]*gofeed.Item, error) {
	resp, err := c.fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", src.URL)
	}
	return parsed.Items, nil
}

// stubFromItem maps a feed entry to an unprocessed article. Entries without a
// link are dropped.
func stubFromItem(src Source, item *gofeed.Item) (model.Article, bool) {
	if item == nil {
		return model.Article{}, false
	}
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return model.Article{}, false
	}

	published := item.Published
	if published == "" {
		published = item.Updated
	}

	return model.Article{
		Title:        strings.TrimSpace(item.Title),
		URL:          link,
		FeedCategory: src.Category,
		PublishedAt:  strings.TrimSpace(published),
	}, true
}
