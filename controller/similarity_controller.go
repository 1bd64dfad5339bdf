package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github/itish2003/pagesim/models"
	"github/itish2003/pagesim/services"
)

// SimilarityController handles the HTTP requests of the similarity API. It
// depends on the SimilarityService to perform the actual work.
type SimilarityController struct {
	service     services.SimilarityService
	defaultTopK int
}

// NewSimilarityController creates a SimilarityController. defaultTopK applies
// when a request has no top_k query parameter.
func NewSimilarityController(service services.SimilarityService, defaultTopK int) *SimilarityController {
	return &SimilarityController{
		service:     service,
		defaultTopK: defaultTopK,
	}
}

// CheckSimilarity is the Gin handler for POST /api/v1/check.
func (c *SimilarityController) CheckSimilarity(ctx *gin.Context) {
	pdf, topK, ok := c.bind(ctx)
	if !ok {
		return
	}

	result, err := c.service.CheckSimilarity(ctx.Request.Context(), pdf, topK)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.CheckResponse{Results: result})
}

// ExplainSimilarity is the Gin handler for POST /api/v1/explanation.
func (c *SimilarityController) ExplainSimilarity(ctx *gin.Context) {
	pdf, topK, ok := c.bind(ctx)
	if !ok {
		return
	}

	result, explanations, err := c.service.ExplainSimilarity(ctx.Request.Context(), pdf, topK)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.ExplanationResponse{Results: result, Explanations: explanations})
}

// bind parses the body and the top_k query parameter, answering 400 itself
// when either is malformed.
func (c *SimilarityController) bind(ctx *gin.Context) ([]byte, int, bool) {
	topK := c.defaultTopK
	if raw, ok := ctx.GetQuery("top_k"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "top_k must be an integer"})
			return nil, 0, false
		}
		topK = n
	}

	var req models.SimilarityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return nil, 0, false
	}
	pdf, err := base64.StdEncoding.DecodeString(req.QueryPDF)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "query_pdf is not valid base64: " + err.Error()})
		return nil, 0, false
	}
	return pdf, topK, true
}

// respondError maps service errors to HTTP status codes. Details of
// dependency failures stay in the logs.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidDocument):
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ctx.JSON(http.StatusRequestTimeout, models.ErrorResponse{Error: "request cancelled"})
	case errors.Is(err, services.ErrDependency):
		ctx.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Similarity backend unavailable"})
	default:
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to compute similarity"})
	}
}
