package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// pointNamespace derives stable qdrant point ids from page ids; qdrant only
// accepts integers or UUIDs as point ids.
var pointNamespace = uuid.MustParse("8f0c1f5e-8a53-4f63-9d8e-3c6b2a1f4e7d")

const payloadPageID = "page_id"

// QdrantStore talks to Qdrant over gRPC using the Dot distance.
type QdrantStore struct {
	client *qdrant.Client
	logger *zap.Logger
}

// NewQdrantStore connects to the gRPC endpoint "host:port".
func NewQdrantStore(endpoint, apiKey string, logger *zap.Logger) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: apiKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantStore{client: client, logger: logger}, nil
}

func (s *QdrantStore) Driver() string { return "qdrant" }

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dim int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", name), zap.Int("dim", dim))
	return nil
}

func (s *QdrantStore) DropCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) HasCollection(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

func (s *QdrantStore) Insert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = pointFromRecord(r)
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(records), name, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", name, err)
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPoint(p))
	}
	return hits, nil
}

// pointID maps a page id to its deterministic UUIDv5 point id.
func pointID(pageID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(pageID)).String()
}

func pointFromRecord(r Record) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(r.ID)),
		Vectors: qdrant.NewVectors(r.Embedding...),
		Payload: qdrant.NewValueMap(map[string]any{payloadPageID: r.ID}),
	}
}

// hitFromPoint recovers the page id from the payload, falling back to the
// point UUID for points written without one.
func hitFromPoint(p *qdrant.ScoredPoint) Hit {
	id := p.GetId().GetUuid()
	if v, ok := p.GetPayload()[payloadPageID]; ok && v.GetStringValue() != "" {
		id = v.GetStringValue()
	}
	return Hit{ID: id, Score: p.GetScore()}
}

// Load verifies the collection exists; qdrant serves collections as soon as
// they are created.
func (s *QdrantStore) Load(ctx context.Context, name string) error {
	exists, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
