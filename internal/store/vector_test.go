// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store_test

import (
	"math"
	"testing"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVector(t *testing.T) {
	require.NoError(t, store.CheckVector([]float32{1, 0, 0}, 3))
	require.NoError(t, store.CheckVector([]float32{0.6, 0.8}, 2))

	err := store.CheckVector([]float32{1, 0}, 3)
	assert.True(t, dserr.IsDimensionMismatch(err))

	err = store.CheckVector([]float32{1, 1}, 2)
	assert.True(t, dserr.HasCode(err, dserr.CodeVectorNormInvalid))

	err = store.CheckVector([]float32{0, 0}, 2)
	assert.True(t, dserr.HasCode(err, dserr.CodeVectorNormInvalid))

	err = store.CheckVector([]float32{float32(math.NaN()), 1}, 2)
	assert.True(t, dserr.HasCode(err, dserr.CodeVectorNormInvalid))
}

func TestNormalize(t *testing.T) {
	v := store.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	require.NoError(t, store.CheckVector(v, 2))

	zero := store.Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestEmbeddingEncoding(t *testing.T) {
	raw, err := store.EncodeEmbedding([]float32{0.5, -0.25})
	require.NoError(t, err)

	got, err := store.DecodeEmbedding(raw)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, got)

	empty, err := store.EncodeEmbedding(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = store.DecodeEmbedding("[0.1, oops")
	assert.True(t, dserr.HasCode(err, dserr.CodeVectorIndexCorrupt))

	_, err = store.DecodeEmbedding("[]")
	assert.Error(t, err)
}
