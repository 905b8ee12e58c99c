// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newMetadataStore, loadVectorIndex)
}

func newMetadataStore(dbPath string) (store.MetadataStore, error) {
	return NewMetadataStore(dbPath)
}

func loadVectorIndex(ctx context.Context, path string, dims int) (store.VectorIndex, error) {
	return LoadVectorIndex(ctx, path, dims)
}
