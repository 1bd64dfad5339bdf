package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemStore is an embedded store backed by chromem-go. chromem normalises
// vectors and ranks by their dot product, which equals the inner product for
// the unit-length embeddings produced by the encoder.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger

	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemStore opens a persistent database at path, or an in-memory one
// when path is empty.
func NewChromemStore(path string, logger *zap.Logger) (*ChromemStore, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
		}
	}
	return &ChromemStore{db: db, logger: logger, dims: make(map[string]int)}, nil
}

// noEmbedding is installed on collections so chromem never tries to embed
// text itself; every record carries its vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem collections only accept precomputed embeddings")
}

func (s *ChromemStore) Driver() string { return "chromem" }

func (s *ChromemStore) CreateCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	if _, err := s.db.CreateCollection(name, map[string]string{"dim": fmt.Sprint(dim)}, noEmbedding); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	s.logger.Info("created chromem collection", zap.String("collection", name), zap.Int("dim", dim))
	return nil
}

func (s *ChromemStore) DropCollection(_ context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) HasCollection(_ context.Context, name string) (bool, error) {
	return s.db.GetCollection(name, noEmbedding) != nil, nil
}

func (s *ChromemStore) Insert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	dim := s.dim(name)

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if dim > 0 && len(r.Embedding) != dim {
			return fmt.Errorf("record %s has dimension %d, collection %s expects %d", r.ID, len(r.Embedding), name, dim)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Embedding: r.Embedding,
			Metadata:  map[string]string{"page_id": r.ID},
		}
	}
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", name, err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error) {
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	// chromem requires 0 < nResults <= document count.
	n := c.Count()
	if topK <= 0 || n == 0 {
		return []Hit{}, nil
	}
	if topK > n {
		topK = n
	}

	results, err := c.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: r.Similarity}
	}
	return hits, nil
}

func (s *ChromemStore) Load(_ context.Context, name string) error {
	if s.db.GetCollection(name, noEmbedding) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) dim(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims[name]
}

