package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
)

// EnrichPass labels every article that has text but no enrichment yet. A
// failed article stays unprocessed and is picked up by a later pass.
func (p *Pipeline) EnrichPass(ctx context.Context) (*model.PassReport, error) {
	if err := requireComponent(p.enricher != nil, "enricher"); err != nil {
		return nil, err
	}

	candidates, err := p.store.ListPendingEnrichment(ctx, p.opts.EnrichBatch)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list pending enrichment")
	}

	report := model.NewPassReport("enrich", len(candidates))
	defer logPass(report)
	defer report.Finish()

	forEach(ctx, candidates, p.opts.EnrichConcurrency, func(ctx context.Context, a model.Article) {
		report.Add(p.enrichOne(ctx, a))
	})
	return report, nil
}

func (p *Pipeline) enrichOne(ctx context.Context, a model.Article) model.Outcome {
	log := zap.L().With(zap.String("article_id", a.ID), zap.String("url", a.URL))

	if err := model.CheckTransition(a, model.StateEnriched); err != nil {
		log.Warn("pipeline: enrichment rejected", zap.Error(err))
		return model.Failed(a, model.StateOf(a), err)
	}

	if p.enrichLimiter != nil {
		if err := p.enrichLimiter.Wait(ctx); err != nil {
			return model.Failed(a, model.StateEnrichmentFailed, eris.Wrap(err, "pipeline: rate limiter wait"))
		}
	}

	e, err := p.enricher.Enrich(ctx, a.ArticleText)
	if err != nil {
		log.Warn("pipeline: enrichment failed", zap.Error(err))
		return model.Failed(a, model.StateEnrichmentFailed, err)
	}

	applied, err := p.store.SaveEnrichment(ctx, a.ID, e)
	if err != nil {
		log.Error("pipeline: save enrichment failed", zap.Error(err))
		return model.Failed(a, model.StateEnrichmentFailed, err)
	}
	if !applied {
		return model.Skipped(a, "already enriched")
	}

	log.Debug("pipeline: enriched",
		zap.String("category", string(e.Category)),
		zap.String("sentiment", string(e.Sentiment)),
	)
	return model.Succeeded(a, model.StateEnriched)
}
