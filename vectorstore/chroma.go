package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"
)

// includeDistances asks Chroma to return query distances.
const includeDistances chromago.Include = "distances"

var errPrecomputedOnly = errors.New("collection stores precomputed embeddings only")

// precomputedEmbeddings is attached to every collection handle. Records and
// queries always carry their vectors, so it is never asked to embed text.
type precomputedEmbeddings struct{}

func (precomputedEmbeddings) EmbedDocuments(context.Context, []string) ([]embeddings.Embedding, error) {
	return nil, errPrecomputedOnly
}

func (precomputedEmbeddings) EmbedQuery(context.Context, string) (embeddings.Embedding, error) {
	return nil, errPrecomputedOnly
}

// ChromaStore talks to a Chroma server through the v2 HTTP API. Collections
// are created with the "ip" HNSW space, whose distance is 1 - <a, b>.
type ChromaStore struct {
	client chromago.Client
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]chromago.Collection
}

// NewChromaStore connects to the Chroma server at endpoint.
func NewChromaStore(endpoint string, logger *zap.Logger) (*ChromaStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &ChromaStore{
		client:      client,
		logger:      logger,
		collections: make(map[string]chromago.Collection),
	}, nil
}

func (s *ChromaStore) Driver() string { return "chroma" }

func (s *ChromaStore) CreateCollection(ctx context.Context, name string, dim int) error {
	collection, err := s.client.CreateCollection(
		ctx,
		name,
		// Metadata first: the option replaces the whole map, including hnsw:space.
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "PDF page embeddings"),
				chromago.NewIntAttribute("dim", int64(dim)),
				chromago.NewStringAttribute("created_at", time.Now().UTC().Format(time.RFC3339)),
			),
		),
		chromago.WithHNSWSpaceCreate(embeddings.IP),
		chromago.WithEmbeddingFunctionCreate(precomputedEmbeddings{}),
	)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.remember(name, collection)
	s.logger.Info("created chroma collection", zap.String("collection", name), zap.Int("dim", dim))
	return nil
}

func (s *ChromaStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (s *ChromaStore) HasCollection(ctx context.Context, name string) (bool, error) {
	cols, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("listing collections: %w", err)
	}
	for _, c := range cols {
		if c.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChromaStore) Insert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	collection, err := s.collection(ctx, name)
	if err != nil {
		return err
	}

	ids := make([]chromago.DocumentID, len(records))
	embs := make([]embeddings.Embedding, len(records))
	metas := make([]chromago.DocumentMetadata, len(records))
	for i, r := range records {
		ids[i] = chromago.DocumentID(r.ID)
		embs[i] = embeddings.NewEmbeddingFromFloat32(r.Embedding)
		metas[i] = chromago.NewDocumentMetadata(chromago.NewStringAttribute("page_id", r.ID))
	}
	err = collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to add %d records to %s: %w", len(records), name, err)
	}
	return nil
}

func (s *ChromaStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	// Another process may have recreated the collection under a new id since
	// the handle was cached, so queries resolve the name every time.
	if err := s.Load(ctx, name); err != nil {
		return nil, err
	}
	collection, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	results, err := collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
		chromago.WithIncludeQuery(includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}

	idGroups := results.GetIDGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		var score float32
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			score = 1 - float32(distGroups[0][i])
		}
		hits = append(hits, Hit{ID: string(id), Score: score})
	}
	return hits, nil
}

func (s *ChromaStore) Load(ctx context.Context, name string) error {
	collection, err := s.client.GetCollection(ctx, name, chromago.WithEmbeddingFunctionGet(precomputedEmbeddings{}))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCollectionNotFound, name, err)
	}
	s.remember(name, collection)
	return nil
}

func (s *ChromaStore) Close() error {
	return s.client.Close()
}

// collection returns the cached handle, fetching it on first use.
func (s *ChromaStore) collection(ctx context.Context, name string) (chromago.Collection, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}
	if err := s.Load(ctx, name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collections[name], nil
}

func (s *ChromaStore) remember(name string, c chromago.Collection) {
	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
}
