// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval

import (
	"context"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Registration is the outcome of registering one chunk.
type Registration struct {
	// ID is the store-allocated id, or store.NoOp for a duplicate chunk_id.
	ID        int64
	Duplicate bool
	Indexed   bool
	// VectorErr is set when the row was written but the index refused the
	// embedding. The row is kept.
	VectorErr error
}

// Register inserts chunk and, when the store allocated a new id, adds the
// chunk's embedding to the index under exactly that id. Vector ids are never
// derived any other way: the row is written first, so a search can never
// return an id the store does not know.
//
// The returned error is reserved for failures that abort ingestion, such as
// validation or storage I/O. Index rejections of a single vector are reported
// through Registration.VectorErr.
func Register(ctx context.Context, chunks store.ChunkStore, index store.VectorIndex, chunk *store.Chunk) (Registration, error) {
	id, err := chunks.Insert(ctx, chunk)
	if err != nil {
		return Registration{}, err
	}
	if id == store.NoOp {
		return Registration{ID: store.NoOp, Duplicate: true}, nil
	}

	reg := Registration{ID: id}
	if len(chunk.Embedding) == 0 {
		return reg, nil
	}

	err = index.AddWithIDs(ctx, []int64{id}, [][]float32{chunk.Embedding})
	switch {
	case err == nil:
		reg.Indexed = true
	case isVectorRejection(err):
		reg.VectorErr = dserr.With(err, dserr.FieldChunkID(chunk.ChunkID), dserr.FieldVectorID(id))
	default:
		return reg, err
	}
	return reg, nil
}

func isVectorRejection(err error) bool {
	switch dserr.CodeOf(err) {
	case dserr.CodeVectorDimensionMismatch, dserr.CodeVectorNormInvalid, dserr.CodeVectorIDInvalid:
		return true
	}
	return false
}
