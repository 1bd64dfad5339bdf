package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github/itish2003/pagesim/services"
)

func newIndexCmd(configPath *string) *cobra.Command {
	var (
		folder string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the page index from the corpus folder",
		Long: "Drops and recreates the collection, then embeds every page of every PDF in the corpus folder.\n" +
			"With --watch the index is rebuilt whenever the folder changes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), *configPath, folder, watch)
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "corpus folder (overrides corpus.folder)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and reindex on changes")
	return cmd
}

func runIndex(parent context.Context, configPath, folder string, watch bool) error {
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
	cfg := d.cfg
	folder = corpusFolder(folder, cfg.Corpus.Folder, d.logger)

	indexer := services.NewCorpusIndexer(d.extractor, d.encoder, d.store, d.logger)
	report, err := indexer.Reindex(ctx, folder, cfg.VectorStore.Collection, cfg.Encoder.Dimension)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if !watch {
		return nil
	}
	return indexer.WatchDirectory(ctx, folder, cfg.VectorStore.Collection, cfg.Encoder.Dimension, cfg.Corpus.WatchDebounce())
}

// corpusFolder picks the folder to index. Explanations served by "serve" read
// page text from corpus.folder, so indexing anywhere else is logged.
func corpusFolder(override, configured string, logger *zap.Logger) string {
	if override == "" {
		return configured
	}
	if filepath.Clean(override) != filepath.Clean(configured) {
		logger.Warn("indexing a folder other than corpus.folder; explanations will not find these documents",
			zap.String("folder", override), zap.String("corpus.folder", configured))
	}
	return override
}
