package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/scrape"
)

// ExtractPass fills in article text for every stub without it. The candidate
// set is taken once at pass start.
func (p *Pipeline) ExtractPass(ctx context.Context) (*model.PassReport, error) {
	if err := requireComponent(p.extractor != nil, "extractor"); err != nil {
		return nil, err
	}

	candidates, err := p.store.ListPendingExtraction(ctx, p.opts.ExtractBatch)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list pending extraction")
	}

	report := model.NewPassReport("extract", len(candidates))
	defer logPass(report)
	defer report.Finish()

	forEach(ctx, candidates, p.opts.ExtractConcurrency, func(ctx context.Context, a model.Article) {
		report.Add(p.extractOne(ctx, a))
	})
	return report, nil
}

func (p *Pipeline) extractOne(ctx context.Context, a model.Article) model.Outcome {
	log := zap.L().With(zap.String("article_id", a.ID), zap.String("url", a.URL))

	if err := model.CheckTransition(a, model.StateTextExtracted); err != nil {
		log.Warn("pipeline: extraction rejected", zap.Error(err))
		return model.Failed(a, model.StateOf(a), err)
	}

	text, err := p.extractor.Extract(ctx, a.URL)
	if errors.Is(err, scrape.ErrExcluded) {
		log.Debug("pipeline: url excluded")
		return model.Skipped(a, "path excluded")
	}
	if err == nil && text == "" {
		err = scrape.ErrNoText
	}
	if err != nil {
		log.Warn("pipeline: extraction failed", zap.Error(err))
		if markErr := p.store.MarkScrapeFailed(ctx, a.ID); markErr != nil {
			log.Error("pipeline: mark scrape failed", zap.Error(markErr))
		}
		return model.Failed(a, model.StateExtractionFailed, err)
	}

	if err := p.store.SaveArticleText(ctx, a.ID, text); err != nil {
		log.Error("pipeline: save article text failed", zap.Error(err))
		return model.Failed(a, model.StateOf(a), err)
	}
	return model.Succeeded(a, model.StateTextExtracted)
}

// Rescrape resets one article and extracts it again. Any earlier enrichment
// is invalidated so the next enrich pass relabels the new text.
func (p *Pipeline) Rescrape(ctx context.Context, url string) (model.Outcome, error) {
	if err := requireComponent(p.extractor != nil, "extractor"); err != nil {
		return model.Outcome{}, err
	}

	a, err := p.store.GetArticleByURL(ctx, url)
	if err != nil {
		return model.Outcome{}, eris.Wrapf(err, "pipeline: load %s", url)
	}
	if err := model.CheckTransition(*a, model.StateDiscovered); err != nil {
		return model.Failed(*a, model.StateOf(*a), err), nil
	}

	if err := p.store.ResetForRescrape(ctx, url); err != nil {
		return model.Outcome{}, eris.Wrapf(err, "pipeline: reset %s", url)
	}
	a, err = p.store.GetArticleByURL(ctx, url)
	if err != nil {
		return model.Outcome{}, eris.Wrapf(err, "pipeline: reload %s", url)
	}
	return p.extractOne(ctx, *a), nil
}
