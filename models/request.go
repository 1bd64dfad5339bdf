package models

// SimilarityRequest is the body of POST /check and POST /explanation.
type SimilarityRequest struct {
	// QueryPDF is the base64 encoded document.
	QueryPDF string `json:"query_pdf" binding:"required"`
}
