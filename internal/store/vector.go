// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"context"
	"math"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// NoResult pads Search output when fewer than k vectors exist.
const NoResult int64 = -1

// MaxSearchK is the largest k Search accepts.
const MaxSearchK = 4096

// NormTolerance is the accepted deviation of a vector's L2 norm from 1.
const NormTolerance = 1e-3

// VectorIndex answers nearest-neighbour queries over unit-normalized vectors
// keyed by store-assigned chunk ids. Scores are cosine similarities.
type VectorIndex interface {
	Dimension() int
	Len() int

	// AddWithIDs adds the batch atomically. Every vector must match the index
	// dimension and be unit-normalized; every id must be positive and unused.
	// A rejected batch leaves the index unchanged.
	AddWithIDs(ctx context.Context, ids []int64, vectors [][]float32) error

	// Search returns exactly k ids ordered by descending similarity, padded
	// with NoResult. k must be in [1, MaxSearchK]. An index with no vectors
	// fails with vector.index.empty.
	Search(ctx context.Context, query []float32, k int) ([]int64, []float32, error)

	// IDs returns every indexed id in ascending order.
	IDs(ctx context.Context) ([]int64, error)

	// Rebuild clears the index and refills it through fill while holding the
	// index exclusively. If fill fails the previous contents are kept.
	Rebuild(ctx context.Context, fill func(add func(ids []int64, vectors [][]float32) error) error) error

	// Persist writes the index to path atomically.
	Persist(ctx context.Context, path string) error

	Close() error
}

// CheckVector verifies dimension and unit norm.
func CheckVector(v []float32, dim int) error {
	if len(v) != dim {
		return dserr.Errorf(dserr.CodeVectorDimensionMismatch,
			"vector has dimension %d, index expects %d", len(v), dim)
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return dserr.New(dserr.CodeVectorNormInvalid, "vector contains non-finite values")
		}
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) > NormTolerance {
		return dserr.Errorf(dserr.CodeVectorNormInvalid, "vector norm %.6f is not 1", norm)
	}
	return nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
