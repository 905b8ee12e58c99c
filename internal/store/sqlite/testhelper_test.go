// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	"github.com/ngoquytuan/chatbotdangcap/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory for a test and returns its path.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "docsearch-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func newTestStore(t *testing.T) *sqlite.MetadataStore {
	t.Helper()
	s, err := sqlite.NewMetadataStore(testDBPath(t, "metadata"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDocument(t *testing.T, s *sqlite.MetadataStore, id string) {
	t.Helper()
	require.NoError(t, s.Documents().Upsert(context.Background(), &store.Document{
		DocumentID: id,
		Title:      "Title " + id,
		Source:     id + ".pdf",
	}))
}

func testChunk(docID, chunkID, text string) *store.Chunk {
	return &store.Chunk{
		ChunkID:    chunkID,
		DocumentID: docID,
		Text:       text,
		TokenCount: len(text),
	}
}

// unitVec returns a unit vector of dims with weight on axis hot and a small
// component on axis (hot+1)%dims, so nearby axes have distinct similarities.
func unitVec(dims, hot int, tilt float64) []float32 {
	v := make([]float32, dims)
	v[hot%dims] = float32(math.Sqrt(1 - tilt*tilt))
	if tilt != 0 {
		v[(hot+1)%dims] = float32(tilt)
	}
	return v
}
