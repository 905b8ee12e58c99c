// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"context"
	"sync"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// DefaultVectorDimensions is the default embedding dimension.
const DefaultVectorDimensions = 1024

// MetadataStoreFactory opens the metadata database at dbPath.
type MetadataStoreFactory func(dbPath string) (MetadataStore, error)

// VectorIndexFactory loads a persisted index from path. An empty path, or a
// path that does not exist yet, yields an empty index of the given dimension.
type VectorIndexFactory func(ctx context.Context, path string, dims int) (VectorIndex, error)

var (
	metadataFactories = map[string]MetadataStoreFactory{}
	indexFactories    = map[string]VectorIndexFactory{}
	factoriesMu       sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, ms MetadataStoreFactory, vi VectorIndexFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	metadataFactories[name] = ms
	indexFactories[name] = vi
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Dimensions returns the configured vector dimension or the default.
func (c *StorageConfig) Dimensions() int {
	if c == nil || c.VectorDimensions <= 0 {
		return DefaultVectorDimensions
	}
	return c.VectorDimensions
}

// NewMetadataStore opens the metadata store for the configured backend.
func NewMetadataStore(cfg *StorageConfig, dbPath string) (MetadataStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := metadataFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, dserr.Errorf(dserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dbPath)
}

// LoadVectorIndex loads (or creates empty) the vector index for the
// configured backend.
func LoadVectorIndex(ctx context.Context, cfg *StorageConfig, path string) (VectorIndex, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := indexFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, dserr.Errorf(dserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(ctx, path, cfg.Dimensions())
}
