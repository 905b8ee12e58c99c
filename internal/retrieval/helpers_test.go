// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store/sqlite"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

const testDims = 4

// fakeEmbedder returns fixed vectors per query text.
type fakeEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
	err     error
	calls   int
}

var _ embedding.Embedder = (*fakeEmbedder)(nil)

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: map[string][]float32{}}
}

func (f *fakeEmbedder) Name() string { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Available(context.Context) bool { return f.err == nil }
func (f *fakeEmbedder) HealthMetrics() health.Metrics { return health.Metrics{Available: f.err == nil} }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return unitVec(f.dim, 0, 0), nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testDir creates a temp directory for a test and returns its path.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "docsearch-retrieval-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// unitVec returns a unit vector of dims with weight on axis hot and a small
// component on axis (hot+1)%dims.
func unitVec(dims, hot int, tilt float64) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = float32(math.Sqrt(1 - tilt*tilt))
	if tilt != 0 {
		v[(hot+1)%dims] = float32(tilt)
	}
	return v
}

type testEnv struct {
	dir       string
	dbPath    string
	indexPath string
	store     *sqlite.MetadataStore
	index     *sqlite.VectorIndex
	embedder  *fakeEmbedder
}

func newTestEnv(t *testing.T, dims int) *testEnv {
	t.Helper()
	dir := testDir(t)
	env := &testEnv{
		dir:       dir,
		dbPath:    filepath.Join(dir, "metadata.db"),
		indexPath: filepath.Join(dir, "vectors.idx"),
		embedder:  newFakeEmbedder(dims),
	}

	s, err := sqlite.NewMetadataStore(env.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	env.store = s

	idx, err := sqlite.NewVectorIndex(context.Background(), dims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	env.index = idx
	return env
}

func (e *testEnv) ingestor(t *testing.T) *retrieval.Ingestor {
	t.Helper()
	g, err := retrieval.NewIngestor(retrieval.IngestorConfig{
		Store:     e.store,
		Index:     e.index,
		IndexPath: e.indexPath,
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) ingest(t *testing.T, batch *retrieval.IngestBatch) *retrieval.IngestReport {
	t.Helper()
	report, err := e.ingestor(t).Ingest(context.Background(), batch)
	require.NoError(t, err)
	return report
}

func (e *testEnv) retriever(t *testing.T, opts retrieval.Options, hooks *retrieval.Hooks) *retrieval.Retriever {
	t.Helper()
	r, err := retrieval.NewRetriever(retrieval.Config{
		Store:    e.store,
		Index:    e.index,
		Embedder: e.embedder,
		Options:  opts,
		Hooks:    hooks,
	})
	require.NoError(t, err)
	return r
}

func (e *testEnv) rebuilder(t *testing.T, includeInactive bool) *retrieval.Rebuilder {
	t.Helper()
	r, err := retrieval.NewRebuilder(retrieval.RebuilderConfig{
		Store:           e.store,
		Index:           e.index,
		IndexPath:       e.indexPath,
		IncludeInactive: includeInactive,
		BatchSize:       2,
	})
	require.NoError(t, err)
	return r
}

// chunkSpec describes one test chunk.
type chunkSpec struct {
	id       string
	category string
	roles    []string
	vec      []float32
}

func batchOf(docID string, specs ...chunkSpec) *retrieval.IngestBatch {
	b := &retrieval.IngestBatch{
		DocumentID:   docID,
		Title:        "Tài liệu " + docID,
		Source:       docID + ".pdf",
		EmbeddingDim: testDims,
	}
	for i, s := range specs {
		b.Chunks = append(b.Chunks, retrieval.IngestChunk{
			ChunkID:           s.id,
			Text:              "Nội dung " + s.id,
			TokenCount:        10 + i,
			SectionChunkIndex: i,
			Category:          s.category,
			AccessRoles:       s.roles,
			Embedding:         s.vec,
		})
	}
	return b
}
