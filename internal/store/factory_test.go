// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	_ "github.com/ngoquytuan/chatbotdangcap/internal/store/sqlite" // register sqlite backend
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func TestNewMetadataStore_SQLite(t *testing.T) {
	cfg := &store.StorageConfig{Backend: "sqlite"}

	ms, err := store.NewMetadataStore(cfg, filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })
	assert.NotNil(t, ms.Chunks())
	assert.NotNil(t, ms.Documents())
}

func TestNewMetadataStore_DefaultBackend(t *testing.T) {
	ms, err := store.NewMetadataStore(nil, filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })
}

func TestLoadVectorIndex_Dimensions(t *testing.T) {
	tests := []struct {
		name string
		dims int
		want int
	}{
		{name: "default", dims: 0, want: store.DefaultVectorDimensions},
		{name: "configured", dims: 384, want: 384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &store.StorageConfig{VectorDimensions: tt.dims}
			idx, err := store.LoadVectorIndex(context.Background(), cfg, filepath.Join(t.TempDir(), "vectors.idx"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			assert.Equal(t, tt.want, idx.Dimension())
			assert.Equal(t, 0, idx.Len())
		})
	}
}

func TestUnsupportedBackend(t *testing.T) {
	cfg := &store.StorageConfig{Backend: "postgres"}

	_, err := store.NewMetadataStore(cfg, "unused")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeStoreBackendUnsupported))

	_, err = store.LoadVectorIndex(context.Background(), cfg, "unused")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeStoreBackendUnsupported))
}
