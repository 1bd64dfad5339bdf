package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/pagesim/models"
	"github/itish2003/pagesim/vectorstore"
)

func defaultCorpus(t *testing.T) *testCorpus {
	return newTestCorpus(t, map[string][]string{
		"A.pdf": {"alpha", "beta"},
		"B.pdf": {"gamma", ""},
	})
}

func TestQueryEngine_SelfSimilarity(t *testing.T) {
	c := defaultCorpus(t)

	result, err := c.engine().Query(context.Background(), "/uploads/A.pdf", 1)
	require.NoError(t, err)

	require.Len(t, result.PerPageMatches, 2)
	for i, pm := range result.PerPageMatches {
		assert.Equal(t, i, pm.QueryPage.PageIndex)
		require.Len(t, pm.Matches, 1)
		m := pm.Matches[0]
		assert.Equal(t, models.NewPageKey("A.pdf", i).String(), m.DocumentID)
		assert.Equal(t, "A.pdf", m.SourceDocument)
		require.NotNil(t, m.PageIndex)
		assert.Equal(t, i, *m.PageIndex)
		assert.GreaterOrEqual(t, m.Similarity, 99.0)
	}
	assert.GreaterOrEqual(t, result.OverallAverage, 99.0)
	assert.LessOrEqual(t, result.OverallAverage, 100.0)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "A.pdf", result.Documents[0].Document)
	assert.Equal(t, 2, result.Documents[0].Hits)
	assert.Equal(t, 2, result.PagesQueried)
	assert.Equal(t, 0, result.PagesSkipped)
}

func TestQueryEngine_RanksPartialMatches(t *testing.T) {
	c := defaultCorpus(t)
	c.extractor.docs["query.pdf"] = []string{"alphabeta"}

	result, err := c.engine().Query(context.Background(), "query.pdf", 2)
	require.NoError(t, err)

	require.Len(t, result.PerPageMatches, 1)
	matches := result.PerPageMatches[0].Matches
	require.Len(t, matches, 2)
	assert.Equal(t, "A.pdf_page_0", matches[0].DocumentID)
	assert.InDelta(t, 80.0, matches[0].Similarity, 0.01)
	assert.Equal(t, "A.pdf_page_1", matches[1].DocumentID)
	assert.InDelta(t, 60.0, matches[1].Similarity, 0.01)
	assert.InDelta(t, 80.0, result.OverallAverage, 0.01)

	require.Len(t, result.Documents, 1)
	assert.InDelta(t, 80.0, result.Documents[0].MaxSimilarity, 0.01)
	assert.InDelta(t, 70.0, result.Documents[0].AverageSimilarity, 0.01)
}

func TestQueryEngine_BlankPagesAreSkipped(t *testing.T) {
	c := defaultCorpus(t)
	c.extractor.docs["query.pdf"] = []string{"", "gamma", "  "}

	result, err := c.engine().Query(context.Background(), "query.pdf", 3)
	require.NoError(t, err)

	require.Len(t, result.PerPageMatches, 1)
	assert.Equal(t, 1, result.PerPageMatches[0].QueryPage.PageIndex)
	assert.Equal(t, "B.pdf_page_0", result.PerPageMatches[0].Matches[0].DocumentID)
	assert.Equal(t, 1, result.PagesQueried)
	assert.Equal(t, 2, result.PagesSkipped)
}

func TestQueryEngine_BlankDocument(t *testing.T) {
	c := defaultCorpus(t)
	c.extractor.docs["empty.pdf"] = []string{"", ""}

	result, err := c.engine().Query(context.Background(), "empty.pdf", 5)
	require.NoError(t, err)
	assert.Empty(t, result.PerPageMatches)
	assert.Empty(t, result.Documents)
	assert.Zero(t, result.OverallAverage)
	assert.Equal(t, 2, result.PagesSkipped)
}

func TestQueryEngine_TopKBounds(t *testing.T) {
	c := defaultCorpus(t)

	t.Run("zero returns no matches", func(t *testing.T) {
		result, err := c.engine().Query(context.Background(), "A.pdf", 0)
		require.NoError(t, err)
		require.Len(t, result.PerPageMatches, 2)
		for _, pm := range result.PerPageMatches {
			assert.NotNil(t, pm.Matches)
			assert.Empty(t, pm.Matches)
		}
		assert.Zero(t, result.OverallAverage)
	})

	t.Run("larger than corpus returns every page", func(t *testing.T) {
		result, err := c.engine().Query(context.Background(), "A.pdf", 50)
		require.NoError(t, err)
		for _, pm := range result.PerPageMatches {
			assert.Len(t, pm.Matches, 3)
			for i := 1; i < len(pm.Matches); i++ {
				assert.GreaterOrEqual(t, pm.Matches[i-1].Score, pm.Matches[i].Score)
			}
		}
	})
}

func TestQueryEngine_MalformedStoredID(t *testing.T) {
	c := defaultCorpus(t)
	require.NoError(t, c.store.Insert(context.Background(), testCollection, []vectorstore.Record{
		{ID: "legacy.pdf", Embedding: []float32{0, 0, 0, 1}},
	}))
	c.extractor.docs["query.pdf"] = []string{"delta"}

	result, err := c.engine().Query(context.Background(), "query.pdf", 1)
	require.NoError(t, err)

	m := result.PerPageMatches[0].Matches[0]
	assert.Equal(t, "legacy.pdf", m.DocumentID)
	assert.Equal(t, "legacy.pdf", m.SourceDocument)
	assert.Nil(t, m.PageIndex)
	assert.GreaterOrEqual(t, m.Similarity, 99.0)
}

func TestQueryEngine_Errors(t *testing.T) {
	t.Run("unreadable document", func(t *testing.T) {
		c := defaultCorpus(t)
		_, err := c.engine().Query(context.Background(), "/missing/nothing.pdf", 1)
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})

	t.Run("encoder failure", func(t *testing.T) {
		c := defaultCorpus(t)
		c.encoder.err = errors.New("connection refused")
		_, err := c.engine().Query(context.Background(), "A.pdf", 1)
		assert.ErrorIs(t, err, ErrDependency)
	})

	t.Run("missing collection", func(t *testing.T) {
		c := defaultCorpus(t)
		require.NoError(t, c.store.DropCollection(context.Background(), testCollection))
		_, err := c.engine().Query(context.Background(), "A.pdf", 1)
		assert.ErrorIs(t, err, ErrDependency)
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		c := defaultCorpus(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.engine().Query(ctx, "A.pdf", 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 50.0, Percentage(0.5))
	assert.Equal(t, 87.65, Percentage(0.87654))
	assert.Equal(t, 0.0, Percentage(0))
	assert.Equal(t, -12.5, Percentage(-0.125))
}

func TestAggregate(t *testing.T) {
	page := func(i int) *int { return &i }
	perPage := []models.PageMatches{
		{QueryPage: models.QueryPage{PageIndex: 0}, Matches: []models.Match{
			{SourceDocument: "A.pdf", PageIndex: page(0), Similarity: 90},
			{SourceDocument: "B.pdf", PageIndex: page(3), Similarity: 80},
		}},
		{QueryPage: models.QueryPage{PageIndex: 1}, Matches: []models.Match{
			{SourceDocument: "B.pdf", PageIndex: page(1), Similarity: 70},
		}},
		{QueryPage: models.QueryPage{PageIndex: 2}, Matches: []models.Match{}},
	}

	result := Aggregate(perPage)
	assert.Equal(t, 80.0, result.OverallAverage)
	assert.Equal(t, 3, result.PagesQueried)
	assert.Equal(t, []models.DocumentStat{
		{Document: "A.pdf", Hits: 1, MaxSimilarity: 90, AverageSimilarity: 90},
		{Document: "B.pdf", Hits: 2, MaxSimilarity: 80, AverageSimilarity: 75},
	}, result.Documents)
}

func TestAggregate_Edges(t *testing.T) {
	t.Run("no pages", func(t *testing.T) {
		result := Aggregate(nil)
		assert.NotNil(t, result.PerPageMatches)
		assert.NotNil(t, result.Documents)
		assert.Zero(t, result.OverallAverage)
	})

	t.Run("clamped to range", func(t *testing.T) {
		result := Aggregate([]models.PageMatches{
			{Matches: []models.Match{{SourceDocument: "A.pdf", Similarity: 100.02}}},
		})
		assert.Equal(t, 100.0, result.OverallAverage)

		result = Aggregate([]models.PageMatches{
			{Matches: []models.Match{{SourceDocument: "A.pdf", Similarity: -3}}},
		})
		assert.Equal(t, 0.0, result.OverallAverage)
	})

	t.Run("ties sort by name", func(t *testing.T) {
		result := Aggregate([]models.PageMatches{
			{Matches: []models.Match{
				{SourceDocument: "b.pdf", Similarity: 50},
				{SourceDocument: "a.pdf", Similarity: 50},
			}},
		})
		require.Len(t, result.Documents, 2)
		assert.Equal(t, "a.pdf", result.Documents[0].Document)
	})
}
