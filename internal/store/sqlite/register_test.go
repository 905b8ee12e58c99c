// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredBackend(t *testing.T) {
	dir := testDir(t)
	cfg := &store.StorageConfig{Backend: "sqlite", VectorDimensions: 3}

	ms, err := store.NewMetadataStore(cfg, filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()
	assert.NotNil(t, ms.Chunks())
	assert.NotNil(t, ms.Documents())
	assert.NotNil(t, ms.AuditLog())
	assert.NotNil(t, ms.Analytics())

	idx, err := store.LoadVectorIndex(context.Background(), cfg, filepath.Join(dir, "vectors.idx"))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	assert.Equal(t, 3, idx.Dimension())
}

func TestRegisteredBackend_DirectoryAsDatabaseFails(t *testing.T) {
	dir := testDir(t)
	dbPath := filepath.Join(dir, "metadata.db")
	require.NoError(t, os.Mkdir(dbPath, 0o755))

	_, err := store.NewMetadataStore(&store.StorageConfig{}, dbPath)
	assert.Error(t, err)
}

func TestUnknownBackend(t *testing.T) {
	cfg := &store.StorageConfig{Backend: "postgres"}

	_, err := store.NewMetadataStore(cfg, "ignored")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")

	_, err = store.LoadVectorIndex(context.Background(), cfg, "ignored")
	assert.Error(t, err)
}
