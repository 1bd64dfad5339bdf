package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github/itish2003/pagesim/models"
)

func newTestExplainer(t *testing.T, docs map[string][]string, timeout time.Duration) *Explainer {
	t.Helper()
	corpus, err := NewCorpusFiles(t.TempDir())
	require.NoError(t, err)
	return NewExplainer(&fakeExtractor{docs: docs}, corpus, ExplainerOptions{
		Timeout:      timeout,
		Workers:      3,
		MaxPageChars: 1000,
	}, zap.NewNop())
}

func match(document string, page int, similarity float64) models.Match {
	return models.Match{
		DocumentID:     models.NewPageKey(document, page).String(),
		SourceDocument: document,
		PageIndex:      &page,
		Similarity:     similarity,
	}
}

func explainDocs() map[string][]string {
	return map[string][]string{
		"query.pdf": {"query page zero", "", "query page two"},
		"A.pdf":     {"corpus A zero", "corpus A one"},
		"B.pdf":     {"", "corpus B one"},
	}
}

func TestExplainer_OrdersByPageThenRank(t *testing.T) {
	e := newTestExplainer(t, explainDocs(), time.Second)
	result := &models.QueryResult{PerPageMatches: []models.PageMatches{
		{QueryPage: models.QueryPage{PageIndex: 0}, Matches: []models.Match{
			match("A.pdf", 0, 91.5),
			match("B.pdf", 1, 40),
		}},
		{QueryPage: models.QueryPage{PageIndex: 2}, Matches: []models.Match{
			match("A.pdf", 1, 77),
		}},
	}}
	gen := &fakeGenerator{generate: func(_ context.Context, prompt string) (string, error) {
		return "<think>comparing</think>\n  Both pages discuss the same topic.", nil
	}}

	explanations, err := e.Explain(context.Background(), "query.pdf", result, gen, "tiny-model")
	require.NoError(t, err)
	require.Len(t, explanations, 3)

	assert.Equal(t, models.Explanation{
		QueryPage:         0,
		Attempt:           1,
		MatchedDocumentID: "A.pdf_page_0",
		MatchedDocument:   "A.pdf",
		MatchedPage:       0,
		Similarity:        91.5,
		Text:              "Both pages discuss the same topic.",
	}, explanations[0])
	assert.Equal(t, 0, explanations[1].QueryPage)
	assert.Equal(t, 2, explanations[1].Attempt)
	assert.Equal(t, "B.pdf", explanations[1].MatchedDocument)
	assert.Equal(t, 2, explanations[2].QueryPage)
	assert.Equal(t, 1, explanations[2].Attempt)

	require.Len(t, gen.prompts, 3)
	for _, model := range gen.models {
		assert.Equal(t, "tiny-model", model)
	}
	var first string
	for _, p := range gen.prompts {
		if strings.Contains(p, "corpus A zero") {
			first = p
		}
	}
	assert.Contains(t, first, "query page zero")
	assert.Contains(t, first, "91.50%")
	assert.Contains(t, first, "Matched file: A.pdf, Page 0")
}

func TestExplainer_SkipsPairsWithoutText(t *testing.T) {
	e := newTestExplainer(t, explainDocs(), time.Second)
	legacy := models.Match{DocumentID: "legacy.pdf", SourceDocument: "legacy.pdf", Similarity: 50}
	result := &models.QueryResult{PerPageMatches: []models.PageMatches{
		{QueryPage: models.QueryPage{PageIndex: 0}, Matches: []models.Match{
			match("B.pdf", 0, 60), // blank corpus page
			legacy,                // no page index
			match("missing.pdf", 0, 55),
			match("A.pdf", 1, 50),
		}},
		{QueryPage: models.QueryPage{PageIndex: 1}, Matches: []models.Match{
			match("A.pdf", 0, 45), // blank query page
		}},
	}}
	gen := &fakeGenerator{generate: func(context.Context, string) (string, error) { return "ok", nil }}

	explanations, err := e.Explain(context.Background(), "query.pdf", result, gen, "")
	require.NoError(t, err)
	require.Len(t, explanations, 1)
	assert.Equal(t, "A.pdf_page_1", explanations[0].MatchedDocumentID)
	assert.Equal(t, 4, explanations[0].Attempt)
}

func TestExplainer_FailuresAreIsolated(t *testing.T) {
	e := newTestExplainer(t, explainDocs(), 50*time.Millisecond)
	result := &models.QueryResult{PerPageMatches: []models.PageMatches{
		{QueryPage: models.QueryPage{PageIndex: 0}, Matches: []models.Match{
			match("A.pdf", 0, 90),
			match("A.pdf", 1, 80),
			match("B.pdf", 1, 70),
		}},
	}}
	gen := &fakeGenerator{generate: func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "corpus A one"):
			return "", errors.New("model not found")
		case strings.Contains(prompt, "corpus B one"):
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "similar", nil
	}}

	explanations, err := e.Explain(context.Background(), "query.pdf", result, gen, "")
	require.NoError(t, err)
	require.Len(t, explanations, 3)

	assert.False(t, explanations[0].Failed)
	assert.Equal(t, "similar", explanations[0].Text)

	assert.True(t, explanations[1].Failed)
	assert.Contains(t, explanations[1].Error, "model not found")
	assert.Empty(t, explanations[1].Text)

	assert.True(t, explanations[2].Failed)
	assert.Contains(t, explanations[2].Error, context.DeadlineExceeded.Error())
}

func TestExplainer_CancelledContext(t *testing.T) {
	e := newTestExplainer(t, explainDocs(), 0)
	result := &models.QueryResult{PerPageMatches: []models.PageMatches{
		{QueryPage: models.QueryPage{PageIndex: 0}, Matches: []models.Match{match("A.pdf", 0, 90)}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{generate: func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}}

	_, err := e.Explain(ctx, "query.pdf", result, gen, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExplainer_NoMatches(t *testing.T) {
	e := newTestExplainer(t, explainDocs(), time.Second)
	gen := &fakeGenerator{generate: func(context.Context, string) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	}}
	explanations, err := e.Explain(context.Background(), "query.pdf", &models.QueryResult{}, gen, "")
	require.NoError(t, err)
	assert.Empty(t, explanations)
}
