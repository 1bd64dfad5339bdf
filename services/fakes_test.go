package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github/itish2003/pagesim/vectorstore"
)

// fakeExtractor serves pages by file base name. Files it does not know are
// read from disk as "%PDF-" followed by form-feed separated pages.
type fakeExtractor struct {
	docs map[string][]string

	mu        sync.Mutex
	forgotten []string
}

func (f *fakeExtractor) pages(path string) ([]string, error) {
	if pages, ok := f.docs[filepath.Base(path)]; ok {
		return pages, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	body, ok := strings.CutPrefix(string(data), "%PDF-")
	if !ok {
		return nil, errors.New("not a PDF")
	}
	return strings.Split(body, "\f"), nil
}

func (f *fakeExtractor) PageCount(path string) (int, error) {
	pages, err := f.pages(path)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

func (f *fakeExtractor) ExtractPage(path string, page int) (string, error) {
	pages, err := f.pages(path)
	if err != nil {
		return "", err
	}
	if page < 0 || page >= len(pages) {
		return "", nil
	}
	return strings.TrimSpace(pages[page]), nil
}

func (f *fakeExtractor) Forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, path)
}

// vocabulary maps the words used by the tests to unit vectors.
var vocabulary = map[string][]float32{
	"alpha":     {1, 0, 0, 0},
	"beta":      {0, 1, 0, 0},
	"gamma":     {0, 0, 1, 0},
	"delta":     {0, 0, 0, 1},
	"alphabeta": {0.8, 0.6, 0, 0},
}

type fakeEncoder struct {
	dim int
	err error
}

func (e *fakeEncoder) Dimension() int { return e.dim }

func (e *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	vec, ok := vocabulary[text]
	if !ok {
		return nil, fmt.Errorf("unknown text %q", text)
	}
	return finishEmbedding(append([]float32(nil), vec...), e.dim, true)
}

type fakeGenerator struct {
	generate func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
	models  []string
}

func (g *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.models = append(g.models, model)
	g.mu.Unlock()
	return g.generate(ctx, prompt)
}

// writeCorpus creates placeholder files for names in a fresh folder.
func writeCorpus(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644))
	}
	return dir
}

type testCorpus struct {
	dir       string
	extractor *fakeExtractor
	encoder   *fakeEncoder
	store     *vectorstore.ChromemStore
	indexer   *CorpusIndexer
}

const testCollection = "pages"

// newTestCorpus indexes docs into an in-memory store.
func newTestCorpus(t *testing.T, docs map[string][]string) *testCorpus {
	t.Helper()
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	store, err := vectorstore.NewChromemStore("", zap.NewNop())
	require.NoError(t, err)

	c := &testCorpus{
		dir:       writeCorpus(t, names...),
		extractor: &fakeExtractor{docs: docs},
		encoder:   &fakeEncoder{dim: 4},
		store:     store,
	}
	c.indexer = NewCorpusIndexer(c.extractor, c.encoder, c.store, zap.NewNop())
	_, err = c.indexer.Reindex(context.Background(), c.dir, testCollection, 4)
	require.NoError(t, err)
	return c
}

func (c *testCorpus) engine() *QueryEngine {
	return NewQueryEngine(c.extractor, c.encoder, c.store, testCollection, 2, zap.NewNop())
}
