package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestService(t *testing.T, gen TextGenerator) (SimilarityService, *testCorpus) {
	t.Helper()
	c := defaultCorpus(t)
	corpus, err := NewCorpusFiles(c.dir)
	require.NoError(t, err)
	explainer := NewExplainer(c.extractor, corpus, ExplainerOptions{Timeout: time.Second, Workers: 2}, zap.NewNop())
	return NewSimilarityService(c.engine(), explainer, c.extractor, gen, "tiny-model", 10, zap.NewNop()), c
}

func TestSimilarityService_CheckSimilarity(t *testing.T) {
	svc, c := newTestService(t, nil)

	result, err := svc.CheckSimilarity(context.Background(), []byte("%PDF-alpha\f\fgamma"), 1)
	require.NoError(t, err)
	require.Len(t, result.PerPageMatches, 2)
	assert.Equal(t, 0, result.PerPageMatches[0].QueryPage.PageIndex)
	assert.Equal(t, "A.pdf_page_0", result.PerPageMatches[0].Matches[0].DocumentID)
	assert.Equal(t, 2, result.PerPageMatches[1].QueryPage.PageIndex)
	assert.Equal(t, "B.pdf_page_0", result.PerPageMatches[1].Matches[0].DocumentID)
	assert.Equal(t, 1, result.PagesSkipped)

	// The request file is gone and evicted from the extractor.
	require.Len(t, c.extractor.forgotten, 1)
	_, err = os.Stat(c.extractor.forgotten[0])
	assert.True(t, os.IsNotExist(err))
}

func TestSimilarityService_ExplainSimilarity(t *testing.T) {
	gen := &fakeGenerator{generate: func(context.Context, string) (string, error) {
		return "<think>hm</think>same words", nil
	}}
	svc, c := newTestService(t, gen)

	result, explanations, err := svc.ExplainSimilarity(context.Background(), []byte("%PDF-alphabeta"), 2)
	require.NoError(t, err)
	require.Len(t, result.PerPageMatches, 1)
	require.Len(t, explanations, 2)
	assert.Equal(t, "A.pdf_page_0", explanations[0].MatchedDocumentID)
	assert.Equal(t, "A.pdf_page_1", explanations[1].MatchedDocumentID)
	assert.Equal(t, "same words", explanations[0].Text)
	assert.Equal(t, []string{"tiny-model", "tiny-model"}, gen.models)

	require.Len(t, c.extractor.forgotten, 1)
	_, err = os.Stat(c.extractor.forgotten[0])
	assert.True(t, os.IsNotExist(err))
}

func TestSimilarityService_RejectsInvalidInput(t *testing.T) {
	svc, c := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CheckSimilarity(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = svc.CheckSimilarity(ctx, []byte("hello world"), 1)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = svc.CheckSimilarity(ctx, []byte("%PDF-alpha"), -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.ExplainSimilarity(ctx, []byte("%PDF-alpha"), -3)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, c.extractor.forgotten)
}

func TestSimilarityService_ClampsTopK(t *testing.T) {
	c := defaultCorpus(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := NewSimilarityService(c.engine(), nil, c.extractor, nil, "", 1, zap.New(core))

	result, err := svc.CheckSimilarity(context.Background(), []byte("%PDF-alphabeta"), 50)
	require.NoError(t, err)
	require.Len(t, result.PerPageMatches, 1)
	assert.Len(t, result.PerPageMatches[0].Matches, 1)

	clamped := logs.FilterMessage("top_k above maximum, clamping").All()
	require.Len(t, clamped, 1)
	assert.Equal(t, int64(50), clamped[0].ContextMap()["requested"])
	assert.Equal(t, int64(1), clamped[0].ContextMap()["max_top_k"])
}

func TestSimilarityService_RemovesFileOnFailure(t *testing.T) {
	svc, c := newTestService(t, nil)

	// Unknown text makes the fake encoder fail.
	_, err := svc.CheckSimilarity(context.Background(), []byte("%PDF-unknown"), 1)
	assert.ErrorIs(t, err, ErrDependency)

	require.Len(t, c.extractor.forgotten, 1)
	_, err = os.Stat(c.extractor.forgotten[0])
	assert.True(t, os.IsNotExist(err))
}
