// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

const testDims = 4

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// mustExecute runs a command that must succeed.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

// testDataDir points the config at a fresh 4-dimensional store.
func testDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DOCSEARCH_DATA_DIR", dir)
	t.Setenv("DOCSEARCH_INDEX_DIMENSION", "4")
	return dir
}

type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Name() string                   { return "stub" }
func (s *stubEmbedder) Dimension() int                 { return len(s.vec) }
func (s *stubEmbedder) Available(context.Context) bool { return true }
func (s *stubEmbedder) HealthMetrics() health.Metrics  { return health.Metrics{Available: true} }

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return append([]float32(nil), s.vec...), nil
}

// stubQuery makes every query embed to vec for the rest of the test.
func stubQuery(t *testing.T, vec []float32) {
	t.Helper()
	old := embedderFactory
	embedderFactory = func(*config.Config) (embedding.Embedder, error) {
		return &stubEmbedder{vec: vec}, nil
	}
	t.Cleanup(func() { embedderFactory = old })
}

func axis(i int) []float32 {
	v := make([]float32, testDims)
	v[i%testDims] = 1
	return v
}

// writeBatch writes a three-chunk document and returns its path.
func writeBatch(t *testing.T, dir string) string {
	t.Helper()
	batch := map[string]any{
		"document_id":   "noi-quy",
		"title":         "Nội quy lao động",
		"source":        "data/noi-quy.txt",
		"language":      "vi",
		"category":      "hr",
		"embedding_dim": testDims,
		"chunks": []map[string]any{
			{"chunk_id": "noi-quy-000", "text": "Giờ làm việc từ 8h đến 17h.", "heading": "Điều 1", "embedding": axis(0)},
			{"chunk_id": "noi-quy-001", "text": "Nghỉ phép năm 12 ngày.", "heading": "Điều 2", "embedding": axis(1)},
			{"chunk_id": "noi-quy-002", "text": "Bảo mật thông tin.", "heading": "Điều 3", "category": "security", "embedding": axis(2)},
		},
	}
	data, err := json.Marshal(batch)
	require.NoError(t, err)

	path := filepath.Join(dir, "noi-quy.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
