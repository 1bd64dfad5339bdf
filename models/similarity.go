package models

// CorpusPage is one indexed page: its key and the embedding of its text.
type CorpusPage struct {
	Key       PageKey
	Embedding []float32
}

// QueryPage is one non-blank page of a submitted document. Text and embedding
// are computed per request and never leave the process.
type QueryPage struct {
	PageIndex int       `json:"page_index"`
	Text      string    `json:"-"`
	Embedding []float32 `json:"-"`
}

// Match is one nearest-neighbour hit for a query page.
type Match struct {
	DocumentID     string `json:"document_id"`
	SourceDocument string `json:"source_document"`
	// PageIndex is nil when DocumentID does not follow the page key convention.
	PageIndex  *int    `json:"page_index"`
	Score      float32 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// PageMatches holds the ranked matches of a single query page.
type PageMatches struct {
	QueryPage QueryPage `json:"query_page"`
	Matches   []Match   `json:"matches"`
}

// DocumentStat aggregates every match that points into one corpus document.
type DocumentStat struct {
	Document          string  `json:"document"`
	Hits              int     `json:"hits"`
	MaxSimilarity     float64 `json:"max_similarity"`
	AverageSimilarity float64 `json:"average_similarity"`
}

// QueryResult is the outcome of comparing a document against the corpus.
type QueryResult struct {
	PerPageMatches []PageMatches  `json:"per_page_matches"`
	OverallAverage float64        `json:"overall_average"`
	Documents      []DocumentStat `json:"documents"`
	PagesQueried   int            `json:"pages_queried"`
	PagesSkipped   int            `json:"pages_skipped"`
}

// Explanation is a generated justification of one (query page, match) pair.
// Failed entries carry Error and no Text.
type Explanation struct {
	QueryPage         int     `json:"query_page"`
	Attempt           int     `json:"attempt"`
	MatchedDocumentID string  `json:"matched_document_id"`
	MatchedDocument   string  `json:"matched_document"`
	MatchedPage       int     `json:"matched_page"`
	Similarity        float64 `json:"similarity"`
	Text              string  `json:"text,omitempty"`
	Failed            bool    `json:"failed"`
	Error             string  `json:"error,omitempty"`
}

// DocumentFailure records a corpus document that could not be indexed.
type DocumentFailure struct {
	Document string `json:"document"`
	Error    string `json:"error"`
}

// IndexReport summarises one full reindex run.
type IndexReport struct {
	Collection   string            `json:"collection"`
	Documents    int               `json:"documents"`
	Inserted     int               `json:"inserted"`
	SkippedPages int               `json:"skipped_pages"`
	Failed       []DocumentFailure `json:"failed,omitempty"`
}
