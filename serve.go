package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github/itish2003/pagesim/controller"
	"github/itish2003/pagesim/services"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the similarity HTTP API against an indexed corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := loadDeps(configPath)
	if err != nil {
		return err
	}
	defer d.close()
	cfg, log := d.cfg, d.logger

	generator, err := newGenerator(ctx, cfg.Explain)
	if err != nil {
		return err
	}
	corpus, err := services.NewCorpusFiles(cfg.Corpus.Folder)
	if err != nil {
		return err
	}

	engine := services.NewQueryEngine(d.extractor, d.encoder, d.store, cfg.VectorStore.Collection, cfg.Query.Workers, log)
	explainer := services.NewExplainer(d.extractor, corpus, services.ExplainerOptions{
		Timeout:      cfg.Explain.Timeout(),
		Workers:      cfg.Explain.Workers,
		MaxPageChars: cfg.Explain.MaxPageChars,
	}, log)
	service := services.NewSimilarityService(engine, explainer, d.extractor, generator, cfg.Explain.Model, cfg.Query.MaxTopK, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	// Bodies carry base64, which is 4/3 the size of the document.
	maxBody := int64(cfg.HTTP.MaxUploadMB)<<20*4/3 + 4096
	router := controller.NewRouter(controller.NewSimilarityController(service, cfg.Query.DefaultTopK), version, maxBody)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting PDF similarity server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
