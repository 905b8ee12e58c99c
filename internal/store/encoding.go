// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"encoding/json"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// EncodeEmbedding serialises an embedding for the embedding column.
// Empty embeddings encode as the empty string, which the store writes as NULL.
func EncodeEmbedding(v []float32) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "encoding embedding: %w", err)
	}
	return string(b), nil
}

// DecodeEmbedding parses a stored embedding.
func DecodeEmbedding(raw string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, dserr.Errorf(dserr.CodeVectorIndexCorrupt, "decoding stored embedding: %w", err)
	}
	if len(v) == 0 {
		return nil, dserr.New(dserr.CodeVectorIndexCorrupt, "stored embedding is empty")
	}
	return v, nil
}
