// Package pipeline runs the collect, extract and enrich passes over the
// article store.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/seen"
	"github.com/sells-group/newsstream/internal/store"
)

// Collector produces article stubs from the configured feeds.
type Collector interface {
	Collect(ctx context.Context) ([]model.Article, *model.PassReport)
}

// Extractor returns the readable text of an article page.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Enricher labels article text.
type Enricher interface {
	Enrich(ctx context.Context, text string) (model.Enrichment, error)
}

// Options tunes pass sizes and concurrency.
type Options struct {
	ExtractConcurrency int
	ExtractBatch       int
	EnrichConcurrency  int
	EnrichBatch        int
	// EnrichRPS caps model calls per second across workers. Zero disables.
	EnrichRPS float64
}

// Pipeline wires the pass components to a store. Dependencies are passed in;
// a nil component disables the passes that need it.
type Pipeline struct {
	store     store.Store
	collector Collector
	extractor Extractor
	enricher  Enricher
	seen      seen.Set
	opts      Options

	enrichLimiter *rate.Limiter
}

// New creates a Pipeline.
func New(st store.Store, col Collector, ext Extractor, enr Enricher, seenSet seen.Set, opts Options) *Pipeline {
	if seenSet == nil {
		seenSet = seen.Nop{}
	}
	if opts.ExtractConcurrency <= 0 {
		opts.ExtractConcurrency = 1
	}
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = 1
	}
	p := &Pipeline{
		store:     st,
		collector: col,
		extractor: ext,
		enricher:  enr,
		seen:      seenSet,
		opts:      opts,
	}
	if opts.EnrichRPS > 0 {
		p.enrichLimiter = rate.NewLimiter(rate.Limit(opts.EnrichRPS), 1)
	}
	return p
}

// RunReport holds the reports of a full run.
type RunReport struct {
	Collect *model.PassReport `json:"collect"`
	Extract *model.PassReport `json:"extract"`
	Enrich  *model.PassReport `json:"enrich"`
}

// Run executes collect, extract and enrich in sequence. A pass that cannot
// start stops the run; per-item failures never do.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	out := &RunReport{}
	var err error

	if out.Collect, err = p.CollectPass(ctx); err != nil {
		return out, err
	}
	if out.Extract, err = p.ExtractPass(ctx); err != nil {
		return out, err
	}
	if out.Enrich, err = p.EnrichPass(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// forEach runs fn over items with at most limit in flight. Items are started
// in slice order.
func forEach(ctx context.Context, items []model.Article, limit int, fn func(ctx context.Context, a model.Article)) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, a := range items {
		g.Go(func() error {
			fn(gCtx, a)
			return nil
		})
	}
	_ = g.Wait()
}

func logPass(r *model.PassReport) {
	zap.L().Info("pipeline: pass complete",
		zap.String("pass", r.Pass),
		zap.Int("candidates", r.Candidates),
		zap.Int("succeeded", r.Succeeded()),
		zap.Int("skipped", r.Skipped()),
		zap.Int("failed", r.Failed()),
		zap.Duration("duration", r.Duration),
	)
}

func requireComponent(ok bool, name string) error {
	if !ok {
		return eris.Errorf("pipeline: %s is not configured", name)
	}
	return nil
}
