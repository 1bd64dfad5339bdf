package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github/itish2003/pagesim/config"
	"github/itish2003/pagesim/logger"
	"github/itish2003/pagesim/metrics"
	"github/itish2003/pagesim/services"
	"github/itish2003/pagesim/vectorstore"
)

// deps holds the long-lived clients shared by every request. They are built
// once at startup and released by close.
type deps struct {
	cfg       config.Config
	logger    *zap.Logger
	extractor *services.PDFExtractor
	encoder   services.Encoder
	store     vectorstore.Store
}

func loadDeps(configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	metrics.Register()

	if err := services.SetPDFLicense(cfg.Extractor.LicenseKey); err != nil {
		log.Warn("UniPDF license not set, PDF processing will fail", zap.Error(err))
	}
	extractor, err := services.NewPDFExtractor(cfg.Extractor.CacheSize)
	if err != nil {
		return nil, err
	}

	encoder, err := newEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(vectorstore.Config{
		Driver:   cfg.VectorStore.Driver,
		Endpoint: cfg.VectorStore.Endpoint,
		APIKey:   cfg.VectorStore.APIKey,
	}, log)
	if err != nil {
		return nil, err
	}

	log.Info("dependencies ready",
		zap.String("version", version),
		zap.String("encoder", cfg.Encoder.Provider),
		zap.String("encoder_model", cfg.Encoder.Model),
		zap.Int("dim", cfg.Encoder.Dimension),
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("collection", cfg.VectorStore.Collection),
	)
	return &deps{cfg: cfg, logger: log, extractor: extractor, encoder: encoder, store: store}, nil
}

func newEncoder(cfg config.EncoderConfig) (services.Encoder, error) {
	switch cfg.Provider {
	case "ollama":
		httpClient := &http.Client{Timeout: cfg.Timeout()}
		return services.NewOllamaEncoder(httpClient, cfg.BaseURL, cfg.Model, cfg.Dimension, *cfg.Normalize), nil
	case "openai":
		return services.NewOpenAIEncoder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimension, *cfg.Normalize)
	default:
		return nil, fmt.Errorf("unknown encoder provider %q", cfg.Provider)
	}
}

func newGenerator(ctx context.Context, cfg config.ExplainConfig) (services.TextGenerator, error) {
	switch cfg.Provider {
	case "ollama":
		// Per-call deadlines come from the explainer's context.
		return services.NewOllamaGenerator(&http.Client{}, cfg.BaseURL, cfg.Model)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, errors.New("explain.api_key is required for the gemini provider")
		}
		return services.NewGeminiGenerator(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

func (d *deps) close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn("failed to close vector store", zap.Error(err))
	}
	_ = d.logger.Sync()
}
