// Package vectorstore persists page embeddings in named collections and
// answers top-k inner product searches over them.
package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when a collection has not been created.
var ErrCollectionNotFound = errors.New("collection not found")

// Record is one stored vector.
type Record struct {
	ID        string
	Embedding []float32
}

// Hit is one search result. Score is the inner product between the query
// vector and the stored vector; hits arrive in descending score order.
type Hit struct {
	ID    string
	Score float32
}

// Store is the vector database capability. Every implementation ranks by
// inner product.
type Store interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	DropCollection(ctx context.Context, name string) error
	HasCollection(ctx context.Context, name string) (bool, error)
	Insert(ctx context.Context, name string, records []Record) error
	Search(ctx context.Context, name string, vector []float32, topK int) ([]Hit, error)
	// Load makes a collection queryable.
	Load(ctx context.Context, name string) error
	Driver() string
	Close() error
}
