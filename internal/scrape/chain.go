// Package scrape extracts readable article text from news pages.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/fetcher"
)

var (
	// ErrExcluded is returned for URLs whose path is never fetched.
	ErrExcluded = eris.New("scrape: url excluded by path matcher")
	// ErrNoText is returned when every strategy came back empty.
	ErrNoText = eris.New("scrape: no article text found")
	// ErrBlocked is returned when the page is an anti-bot challenge.
	ErrBlocked = eris.New("scrape: blocked by anti-bot page")
)

// Chain fetches a page once and tries extraction strategies in order,
// returning the first non-empty text.
type Chain struct {
	PathMatcher *PathMatcher
	fetcher     fetcher.Fetcher
	strategies  []Strategy
}

// NewChain creates a Chain with the given path matcher, fetcher and
// strategies.
func NewChain(matcher *PathMatcher, f fetcher.Fetcher, strategies ...Strategy) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{
		PathMatcher: matcher,
		fetcher:     f,
		strategies:  strategies,
	}
}

// Extract fetches targetURL and returns its article text.
func (c *Chain) Extract(ctx context.Context, targetURL string) (string, error) {
	if c.PathMatcher.IsExcluded(targetURL) {
		return "", eris.Wrapf(ErrExcluded, "scrape: %s", targetURL)
	}

	resp, err := c.fetcher.Get(ctx, targetURL)
	if err != nil {
		if resp != nil {
			if blocked, bt := DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
				return "", eris.Wrapf(ErrBlocked, "scrape: %s (%s)", targetURL, bt)
			}
		}
		return "", err
	}
	if blocked, bt := DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
		return "", eris.Wrapf(ErrBlocked, "scrape: %s (%s)", targetURL, bt)
	}

	page := NewPage(targetURL, resp.Body)

	var lastErr error
	for _, s := range c.strategies {
		text, err := s.Extract(ctx, page)
		if err != nil {
			zap.L().Debug("scrape: strategy failed, trying next",
				zap.String("strategy", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if text != "" {
			zap.L().Debug("scrape: extracted",
				zap.String("strategy", s.Name()),
				zap.String("url", targetURL),
				zap.Int("chars", len(text)),
			)
			return text, nil
		}
	}
	if lastErr != nil {
		return "", eris.Wrap(lastErr, "scrape: all strategies failed")
	}
	return "", eris.Wrapf(ErrNoText, "scrape: %s", targetURL)
}
