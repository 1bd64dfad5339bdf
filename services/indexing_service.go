package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github/itish2003/pagesim/metrics"
	"github/itish2003/pagesim/models"
	"github/itish2003/pagesim/vectorstore"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// errUnreadableDocument marks corpus documents that are skipped, not fatal.
var errUnreadableDocument = errors.New("unreadable document")

// CorpusIndexer rebuilds the page collection from a folder of PDFs.
type CorpusIndexer struct {
	extractor TextExtractor
	encoder   Encoder
	store     vectorstore.Store
	logger    *zap.Logger
}

// NewCorpusIndexer creates a new indexing service.
func NewCorpusIndexer(extractor TextExtractor, encoder Encoder, store vectorstore.Store, logger *zap.Logger) *CorpusIndexer {
	return &CorpusIndexer{
		extractor: extractor,
		encoder:   encoder,
		store:     store,
		logger:    logger.Named("indexer"),
	}
}

// Reindex drops and recreates collection, then stores one record per
// non-blank page of every PDF in folder. Documents that cannot be parsed are
// logged, reported and skipped; encoder and store failures abort the run.
func (s *CorpusIndexer) Reindex(ctx context.Context, folder, collection string, dim int) (*models.IndexReport, error) {
	if s.encoder.Dimension() != dim {
		return nil, fmt.Errorf("%w: encoder produces %d, collection wants %d", ErrDimensionMismatch, s.encoder.Dimension(), dim)
	}
	files, err := NewCorpusFiles(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	names, err := files.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	s.logger.Info("starting reindex",
		zap.String("folder", files.Dir),
		zap.String("collection", collection),
		zap.Int("documents", len(names)),
	)

	if err := s.recreateCollection(ctx, collection, dim); err != nil {
		return nil, err
	}

	report := &models.IndexReport{Collection: collection, Documents: len(names)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := files.Resolve(name)
		if err != nil {
			return nil, err
		}

		records, skipped, err := s.embedDocument(ctx, path, name, dim)
		if errors.Is(err, errUnreadableDocument) {
			s.logger.Warn("skipping document", zap.String("document", name), zap.Error(err))
			metrics.DocumentsFailedTotal.Inc()
			report.Failed = append(report.Failed, models.DocumentFailure{Document: name, Error: err.Error()})
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := s.store.Insert(ctx, collection, records); err != nil {
			return nil, fmt.Errorf("%w: inserting pages of %s: %w", ErrDependency, name, err)
		}
		report.Inserted += len(records)
		report.SkippedPages += skipped
		metrics.PagesIndexedTotal.WithLabelValues("inserted").Add(float64(len(records)))
		metrics.PagesIndexedTotal.WithLabelValues("blank").Add(float64(skipped))
		s.logger.Debug("indexed document",
			zap.String("document", name),
			zap.Int("pages", len(records)),
			zap.Int("blank_pages", skipped),
		)
	}

	if err := s.store.Load(ctx, collection); err != nil {
		return nil, fmt.Errorf("%w: loading collection %s: %w", ErrDependency, collection, err)
	}
	s.logger.Info("reindex finished",
		zap.String("collection", collection),
		zap.Int("inserted", report.Inserted),
		zap.Int("blank_pages", report.SkippedPages),
		zap.Int("failed_documents", len(report.Failed)),
	)
	return report, nil
}

func (s *CorpusIndexer) recreateCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.store.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}
	if exists {
		s.logger.Info("dropping existing collection", zap.String("collection", collection))
		if err := s.store.DropCollection(ctx, collection); err != nil {
			return fmt.Errorf("%w: %w", ErrDependency, err)
		}
	}
	if err := s.store.CreateCollection(ctx, collection, dim); err != nil {
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}
	return nil
}

// embedDocument returns the records of every non-blank page and the number of
// blank pages.
func (s *CorpusIndexer) embedDocument(ctx context.Context, path, name string, dim int) ([]vectorstore.Record, int, error) {
	pageCount, err := s.extractor.PageCount(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errUnreadableDocument, err)
	}

	var (
		records []vectorstore.Record
		skipped int
	)
	for i := 0; i < pageCount; i++ {
		text, err := s.extractor.ExtractPage(path, i)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: page %d: %w", errUnreadableDocument, i, err)
		}
		if text == "" {
			skipped++
			continue
		}

		embedding, err := s.encoder.Encode(ctx, text)
		if err != nil {
			if errors.Is(err, ErrDimensionMismatch) {
				return nil, 0, err
			}
			return nil, 0, fmt.Errorf("%w: could not embed page %d of %s: %w", ErrDependency, i, name, err)
		}
		if len(embedding) != dim {
			return nil, 0, fmt.Errorf("%w: page %d of %s has %d values, want %d", ErrDimensionMismatch, i, name, len(embedding), dim)
		}

		page := models.CorpusPage{Key: models.NewPageKey(name, i), Embedding: embedding}
		records = append(records, vectorstore.Record{ID: page.Key.String(), Embedding: page.Embedding})
	}
	return records, skipped, nil
}

// WatchDirectory reindexes the folder whenever a PDF in it is created,
// written, removed or renamed. Bursts of events within debounce trigger a
// single run. It blocks until ctx is cancelled.
func (s *CorpusIndexer) WatchDirectory(ctx context.Context, folder, collection string, dim int, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(folder); err != nil {
		return fmt.Errorf("failed to watch %s: %w", folder, err)
	}
	s.logger.Info("watching corpus folder", zap.String("folder", folder), zap.Duration("debounce", debounce))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug("corpus change", zap.String("event", event.String()))
			timer.Reset(debounce)

		case <-timer.C:
			if _, err := s.Reindex(ctx, folder, collection, dim); err != nil {
				s.logger.Error("reindex after change failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			s.logger.Info("context cancelled, shutting down watcher")
			return nil
		}
	}
}
