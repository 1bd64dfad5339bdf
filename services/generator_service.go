package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github/itish2003/pagesim/metrics"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"google.golang.org/genai"
)

// TextGenerator produces a completion for a prompt with the named model.
type TextGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// OllamaGenerator generates text with a local Ollama server.
type OllamaGenerator struct {
	llm *ollama.LLM
}

// NewOllamaGenerator connects to serverURL; model is the default used when a
// call passes none.
func NewOllamaGenerator(httpClient *http.Client, serverURL, model string) (*OllamaGenerator, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaGenerator{llm: llm}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, model, prompt string) (text string, err error) {
	defer func(start time.Time) {
		metrics.Since(metrics.GenerateDuration.WithLabelValues("ollama", metrics.Status(err)), start)
	}(time.Now())

	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	text, err = llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return text, nil
}

// GeminiGenerator generates text with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
}

// NewGeminiGenerator creates a Gemini API client.
func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, model, prompt string) (text string, err error) {
	defer func(start time.Time) {
		metrics.Since(metrics.GenerateDuration.WithLabelValues("gemini", metrics.Status(err)), start)
	}(time.Now())

	result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}
