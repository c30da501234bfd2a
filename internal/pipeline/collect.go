package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
)

// CollectPass fetches the feeds and persists one stub per new URL. URLs the
// store or the seen set already knows are skipped. Feed failures are carried
// into the report.
func (p *Pipeline) CollectPass(ctx context.Context) (*model.PassReport, error) {
	if err := requireComponent(p.collector != nil, "collector"); err != nil {
		return nil, err
	}

	stubs, feeds := p.collector.Collect(ctx)

	var failedFeeds []model.Outcome
	if feeds != nil {
		for _, o := range feeds.Outcomes {
			if o.Status == model.OutcomeFailed {
				failedFeeds = append(failedFeeds, o)
			}
		}
	}

	// Candidates are the discovered stubs plus the feeds that produced none.
	report := model.NewPassReport("collect", len(stubs)+len(failedFeeds))
	defer logPass(report)
	defer report.Finish()

	for _, o := range failedFeeds {
		report.Add(o)
	}
	for _, a := range stubs {
		report.Add(p.collectOne(ctx, a))
	}
	return report, nil
}

func (p *Pipeline) collectOne(ctx context.Context, a model.Article) model.Outcome {
	log := zap.L().With(zap.String("url", a.URL))

	known, err := p.seen.Seen(ctx, a.URL)
	if err != nil {
		log.Warn("pipeline: seen lookup failed, falling back to store", zap.Error(err))
	}
	if known {
		return model.Skipped(a, "seen in an earlier run")
	}

	inserted, err := p.store.UpsertStub(ctx, &a)
	if err != nil {
		log.Error("pipeline: persist stub failed", zap.Error(err))
		return model.Failed(a, model.StateDiscovered, err)
	}

	if err := p.seen.Mark(ctx, a.URL); err != nil {
		log.Warn("pipeline: seen mark failed", zap.Error(err))
	}

	if !inserted {
		return model.Skipped(a, "already stored")
	}
	log.Debug("pipeline: new stub", zap.String("title", a.Title))
	return model.Succeeded(a, model.StateDiscovered)
}
