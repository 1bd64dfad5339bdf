package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github/itish2003/pagesim/metrics"
	"github/itish2003/pagesim/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Encoder maps text to a fixed-length vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OllamaEncoder embeds text through Ollama's /api/embed endpoint.
type OllamaEncoder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dim        int
	normalize  bool
}

// NewOllamaEncoder creates an encoder for the given Ollama server and model.
func NewOllamaEncoder(httpClient *http.Client, baseURL, model string, dim int, normalize bool) *OllamaEncoder {
	return &OllamaEncoder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dim:        dim,
		normalize:  normalize,
	}
}

func (e *OllamaEncoder) Dimension() int { return e.dim }

// Encode generates an embedding using Ollama.
func (e *OllamaEncoder) Encode(c context.Context, text string) (vec []float32, err error) {
	defer func(start time.Time) {
		metrics.Since(metrics.EncodeDuration.WithLabelValues("ollama", metrics.Status(err)), start)
	}(time.Now())

	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:    e.model,
		Input:    text,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(c, http.MethodPost, e.baseURL+"/api/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if len(ollamaResp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}
	return finishEmbedding(ollamaResp.Embeddings[0], e.dim, e.normalize)
}

// LangchainEncoder embeds text with any langchaingo embedder, here an
// OpenAI-compatible endpoint (OpenAI, TEI, vLLM, LocalAI...).
type LangchainEncoder struct {
	embedder  embeddings.Embedder
	dim       int
	normalize bool
}

// NewOpenAIEncoder creates an encoder against an OpenAI-compatible API.
func NewOpenAIEncoder(baseURL, apiKey, model string, dim int, normalize bool) (*LangchainEncoder, error) {
	if apiKey == "" {
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &LangchainEncoder{embedder: embedder, dim: dim, normalize: normalize}, nil
}

func (e *LangchainEncoder) Dimension() int { return e.dim }

func (e *LangchainEncoder) Encode(ctx context.Context, text string) (vec []float32, err error) {
	defer func(start time.Time) {
		metrics.Since(metrics.EncodeDuration.WithLabelValues("openai", metrics.Status(err)), start)
	}(time.Now())

	vec, err = e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return finishEmbedding(vec, e.dim, e.normalize)
}

// finishEmbedding checks the dimension and optionally scales vec to unit
// length so inner products stay within [-1, 1].
func finishEmbedding(vec []float32, dim int, normalize bool) ([]float32, error) {
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	if normalize {
		normalizeVector(vec)
	}
	return vec, nil
}

func normalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) * inv)
	}
}
