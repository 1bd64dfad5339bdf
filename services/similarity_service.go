package services

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github/itish2003/pagesim/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pdfHeader must appear within the first headerWindow bytes of a PDF.
var pdfHeader = []byte("%PDF-")

const headerWindow = 1024

// SimilarityService is the request-level entry point used by the HTTP layer.
type SimilarityService interface {
	CheckSimilarity(ctx context.Context, pdf []byte, topK int) (*models.QueryResult, error)
	ExplainSimilarity(ctx context.Context, pdf []byte, topK int) (*models.QueryResult, []models.Explanation, error)
}

// similarityServiceImpl holds the dependencies it needs to do its job
type similarityServiceImpl struct {
	engine    *QueryEngine
	explainer *Explainer
	generator TextGenerator
	model     string
	maxTopK   int
	extractor TextExtractor
	logger    *zap.Logger
}

// NewSimilarityService creates the service. generator and model are used for
// explanations.
func NewSimilarityService(engine *QueryEngine, explainer *Explainer, extractor TextExtractor, generator TextGenerator, model string, maxTopK int, logger *zap.Logger) SimilarityService {
	return &similarityServiceImpl{
		engine:    engine,
		explainer: explainer,
		generator: generator,
		model:     model,
		maxTopK:   maxTopK,
		extractor: extractor,
		logger:    logger.Named("service"),
	}
}

// CheckSimilarity compares the submitted PDF with the corpus.
func (s *similarityServiceImpl) CheckSimilarity(ctx context.Context, pdf []byte, topK int) (*models.QueryResult, error) {
	var result *models.QueryResult
	err := s.withTempDocument(pdf, topK, func(path string, topK int) error {
		var err error
		result, err = s.engine.Query(ctx, path, topK)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExplainSimilarity compares the submitted PDF with the corpus and explains
// every match.
func (s *similarityServiceImpl) ExplainSimilarity(ctx context.Context, pdf []byte, topK int) (*models.QueryResult, []models.Explanation, error) {
	var (
		result       *models.QueryResult
		explanations []models.Explanation
	)
	err := s.withTempDocument(pdf, topK, func(path string, topK int) error {
		var err error
		result, err = s.engine.Query(ctx, path, topK)
		if err != nil {
			return err
		}
		explanations, err = s.explainer.Explain(ctx, path, result, s.generator, s.model)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return result, explanations, nil
}

// withTempDocument validates the request, writes pdf to a request-scoped file
// and removes it once fn returns, whatever the outcome. fn receives topK
// clamped to the configured maximum.
func (s *similarityServiceImpl) withTempDocument(pdf []byte, topK int, fn func(path string, topK int) error) error {
	if topK < 0 {
		return fmt.Errorf("%w: top_k must not be negative, got %d", ErrInvalidInput, topK)
	}
	if len(pdf) == 0 {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	if !bytes.Contains(pdf[:min(len(pdf), headerWindow)], pdfHeader) {
		return fmt.Errorf("%w: missing PDF header", ErrInvalidDocument)
	}

	requestID := uuid.New().String()
	log := s.logger.With(zap.String("request_id", requestID))
	if topK > s.maxTopK {
		log.Warn("top_k above maximum, clamping", zap.Int("requested", topK), zap.Int("max_top_k", s.maxTopK))
		topK = s.maxTopK
	}

	f, err := os.CreateTemp("", "query-"+requestID+"-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if forgetter, ok := s.extractor.(interface{ Forget(string) }); ok {
			forgetter.Forget(path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove temp document", zap.String("path", path), zap.Error(err))
		}
	}()

	if _, err := f.Write(pdf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	log.Info("processing document", zap.Int("bytes", len(pdf)), zap.Int("top_k", topK))
	if err := fn(path, topK); err != nil {
		log.Warn("request failed", zap.Error(err))
		return err
	}
	return nil
}
