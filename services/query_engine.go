package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github/itish2003/pagesim/metrics"
	"github/itish2003/pagesim/models"
	"github/itish2003/pagesim/vectorstore"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QueryEngine compares every page of a document with the indexed corpus.
type QueryEngine struct {
	extractor  TextExtractor
	encoder    Encoder
	store      vectorstore.Store
	collection string
	workers    int
	logger     *zap.Logger
}

// NewQueryEngine creates an engine searching collection with at most workers
// pages in flight.
func NewQueryEngine(extractor TextExtractor, encoder Encoder, store vectorstore.Store, collection string, workers int, logger *zap.Logger) *QueryEngine {
	if workers <= 0 {
		workers = 1
	}
	return &QueryEngine{
		extractor:  extractor,
		encoder:    encoder,
		store:      store,
		collection: collection,
		workers:    workers,
		logger:     logger.Named("query"),
	}
}

// Query returns the topK nearest corpus pages of every non-blank page of the
// document at documentPath, plus document and corpus level statistics.
func (q *QueryEngine) Query(ctx context.Context, documentPath string, topK int) (*models.QueryResult, error) {
	pages, skipped, err := q.readPages(documentPath)
	if err != nil {
		return nil, err
	}
	metrics.QueryPagesTotal.WithLabelValues("queried").Add(float64(len(pages)))
	metrics.QueryPagesTotal.WithLabelValues("blank").Add(float64(skipped))

	perPage := make([]models.PageMatches, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)
	for i := range pages {
		g.Go(func() error {
			matches, err := q.queryPage(gctx, &pages[i], topK)
			if err != nil {
				return err
			}
			perPage[i] = models.PageMatches{QueryPage: pages[i], Matches: matches}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	result := Aggregate(perPage)
	result.PagesSkipped = skipped
	q.logger.Debug("query finished",
		zap.Int("pages", len(pages)),
		zap.Int("blank_pages", skipped),
		zap.Int("top_k", topK),
		zap.Float64("overall_average", result.OverallAverage),
	)
	return result, nil
}

// readPages extracts the non-blank pages in ascending page order.
func (q *QueryEngine) readPages(documentPath string) ([]models.QueryPage, int, error) {
	pageCount, err := q.extractor.PageCount(documentPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	var (
		pages   []models.QueryPage
		skipped int
	)
	for i := 0; i < pageCount; i++ {
		text, err := q.extractor.ExtractPage(documentPath, i)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: page %d: %w", ErrInvalidDocument, i, err)
		}
		if text == "" {
			skipped++
			continue
		}
		pages = append(pages, models.QueryPage{PageIndex: i, Text: text})
	}
	return pages, skipped, nil
}

func (q *QueryEngine) queryPage(ctx context.Context, page *models.QueryPage, topK int) ([]models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embedding, err := q.encoder.Encode(ctx, page.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: query page %d: %w", ErrDependency, page.PageIndex, err)
		}
		return nil, fmt.Errorf("%w: could not embed query page %d: %w", ErrDependency, page.PageIndex, err)
	}
	page.Embedding = embedding

	if topK <= 0 {
		return []models.Match{}, nil
	}

	start := time.Now()
	hits, err := q.store.Search(ctx, q.collection, embedding, topK)
	metrics.Since(metrics.SearchDuration.WithLabelValues(q.store.Driver(), metrics.Status(err)), start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: searching for query page %d: %w", ErrDependency, page.PageIndex, err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	matches := make([]models.Match, len(hits))
	for i, hit := range hits {
		matches[i] = q.newMatch(hit)
	}
	return matches, nil
}

func (q *QueryEngine) newMatch(hit vectorstore.Hit) models.Match {
	m := models.Match{
		DocumentID: hit.ID,
		Score:      hit.Score,
		Similarity: Percentage(hit.Score),
	}
	key, ok := models.ParsePageKey(hit.ID)
	m.SourceDocument = key.Document
	if !ok {
		metrics.MalformedIDsTotal.Inc()
		q.logger.Warn("matched id does not follow the page key convention",
			zap.String("id", hit.ID),
			zap.String("collection", q.collection),
		)
		return m
	}
	page := key.Page
	m.PageIndex = &page
	return m
}

// Percentage rescales an inner product score to a similarity percentage with
// two decimals.
func Percentage(score float32) float64 {
	return round2(float64(score) * 100)
}

// Aggregate computes the corpus and document level statistics of per-page
// matches. OverallAverage is the mean of each page's best match over the pages
// that have one, clamped to [0, 100]; it is 0 when no page matched.
func Aggregate(perPage []models.PageMatches) *models.QueryResult {
	result := &models.QueryResult{
		PerPageMatches: perPage,
		PagesQueried:   len(perPage),
		Documents:      []models.DocumentStat{},
	}
	if result.PerPageMatches == nil {
		result.PerPageMatches = []models.PageMatches{}
	}

	var (
		sum     float64
		counted int
	)
	type docAcc struct {
		hits int
		max  float64
		sum  float64
	}
	docs := make(map[string]*docAcc)
	for _, pm := range perPage {
		if len(pm.Matches) == 0 {
			continue
		}
		sum += pm.Matches[0].Similarity
		counted++

		for _, m := range pm.Matches {
			acc, ok := docs[m.SourceDocument]
			if !ok {
				acc = &docAcc{max: m.Similarity}
				docs[m.SourceDocument] = acc
			}
			acc.hits++
			acc.sum += m.Similarity
			acc.max = math.Max(acc.max, m.Similarity)
		}
	}
	if counted > 0 {
		result.OverallAverage = clampPercentage(round2(sum / float64(counted)))
	}

	for name, acc := range docs {
		result.Documents = append(result.Documents, models.DocumentStat{
			Document:          name,
			Hits:              acc.hits,
			MaxSimilarity:     acc.max,
			AverageSimilarity: round2(acc.sum / float64(acc.hits)),
		})
	}
	sort.Slice(result.Documents, func(i, j int) bool {
		a, b := result.Documents[i], result.Documents[j]
		if a.MaxSimilarity != b.MaxSimilarity {
			return a.MaxSimilarity > b.MaxSimilarity
		}
		return a.Document < b.Document
	})
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampPercentage(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
