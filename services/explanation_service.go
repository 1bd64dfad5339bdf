package services

import (
	"context"
	"time"

	"github/itish2003/pagesim/metrics"
	"github/itish2003/pagesim/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Explainer asks a text generator why matched pages are similar.
type Explainer struct {
	extractor    TextExtractor
	corpus       *CorpusFiles
	timeout      time.Duration
	workers      int
	maxPageChars int
	logger       *zap.Logger
}

// ExplainerOptions tunes generator calls.
type ExplainerOptions struct {
	Timeout      time.Duration // per generator call
	Workers      int
	MaxPageChars int
}

// NewExplainer creates an explainer re-reading matched pages from corpus.
func NewExplainer(extractor TextExtractor, corpus *CorpusFiles, opts ExplainerOptions, logger *zap.Logger) *Explainer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Explainer{
		extractor:    extractor,
		corpus:       corpus,
		timeout:      opts.Timeout,
		workers:      opts.Workers,
		maxPageChars: opts.MaxPageChars,
		logger:       logger.Named("explain"),
	}
}

type explainTask struct {
	queryPage int
	attempt   int
	match     models.Match
}

// Explain produces one explanation per (query page, match) pair of result, in
// page order then match rank. Pairs where either page has no text are
// skipped. A failing or timed out generator call yields a failed entry and
// does not affect the other pairs; only cancellation of ctx aborts the run.
func (e *Explainer) Explain(ctx context.Context, queryPath string, result *models.QueryResult, generator TextGenerator, model string) ([]models.Explanation, error) {
	var tasks []explainTask
	for _, pm := range result.PerPageMatches {
		for rank, m := range pm.Matches {
			tasks = append(tasks, explainTask{queryPage: pm.QueryPage.PageIndex, attempt: rank + 1, match: m})
		}
	}

	slots := make([]*models.Explanation, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			explanation, err := e.explainPair(gctx, queryPath, task, generator, model)
			if err != nil {
				return err
			}
			slots[i] = explanation
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	explanations := make([]models.Explanation, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			explanations = append(explanations, *s)
		}
	}
	return explanations, nil
}

// explainPair returns nil when the pair is skipped. The only error it returns
// is the cancellation of ctx.
func (e *Explainer) explainPair(ctx context.Context, queryPath string, task explainTask, generator TextGenerator, model string) (*models.Explanation, error) {
	log := e.logger.With(
		zap.Int("query_page", task.queryPage),
		zap.Int("attempt", task.attempt),
		zap.String("matched", task.match.DocumentID),
	)
	if task.match.PageIndex == nil {
		log.Warn("skipping match without page index")
		metrics.ExplanationsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	matchedPage := *task.match.PageIndex

	queryText, err := e.extractor.ExtractPage(queryPath, task.queryPage)
	if err != nil {
		log.Warn("could not re-read query page", zap.Error(err))
	}
	matchedText := ""
	matchedPath, err := e.corpus.Resolve(task.match.SourceDocument)
	if err == nil {
		matchedText, err = e.extractor.ExtractPage(matchedPath, matchedPage)
	}
	if err != nil {
		log.Warn("could not re-read matched page", zap.Error(err))
	}
	if queryText == "" || matchedText == "" {
		metrics.ExplanationsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	prompt := ExplanationPrompt{
		QueryFile:   queryPath,
		QueryPage:   task.queryPage,
		QueryText:   clipText(queryText, e.maxPageChars),
		MatchedFile: task.match.SourceDocument,
		MatchedPage: matchedPage,
		MatchedText: clipText(matchedText, e.maxPageChars),
		Similarity:  task.match.Similarity,
	}

	explanation := &models.Explanation{
		QueryPage:         task.queryPage,
		Attempt:           task.attempt,
		MatchedDocumentID: task.match.DocumentID,
		MatchedDocument:   task.match.SourceDocument,
		MatchedPage:       matchedPage,
		Similarity:        task.match.Similarity,
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	generated, err := generator.Generate(callCtx, model, prompt.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("explanation failed", zap.Error(err))
		metrics.ExplanationsTotal.WithLabelValues("failed").Inc()
		explanation.Failed = true
		explanation.Error = err.Error()
		return explanation, nil
	}

	explanation.Text = extractAnswer(generated)
	metrics.ExplanationsTotal.WithLabelValues("ok").Inc()
	return explanation, nil
}
