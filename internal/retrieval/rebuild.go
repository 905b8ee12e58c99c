// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

const defaultRebuildBatchSize = 512

// RebuilderConfig holds dependencies for the Rebuilder.
type RebuilderConfig struct {
	Store store.MetadataStore
	Index store.VectorIndex
	// IndexPath, when set, is where the rebuilt index is persisted.
	IndexPath string
	// IncludeInactive also indexes embeddings of soft-deleted chunks. Off by
	// default so the index matches what retrieval can return.
	IncludeInactive bool
	BatchSize       int
	Logger          *slog.Logger
}

// RebuildReport counts what a rebuild did with every stored embedding.
type RebuildReport struct {
	Rebuilt              int           `json:"rebuilt"`
	SkippedBadDimension  int           `json:"skipped_bad_dimension"`
	SkippedBadEncoding   int           `json:"skipped_bad_encoding"`
	SkippedNotNormalized int           `json:"skipped_not_normalized"`
	IncludeInactive      bool          `json:"include_inactive"`
	Elapsed              time.Duration `json:"elapsed"`
}

// Skipped is the total number of rows left out of the index.
func (r *RebuildReport) Skipped() int {
	return r.SkippedBadDimension + r.SkippedBadEncoding + r.SkippedNotNormalized
}

// VerifyReport compares the index with the embeddings the store holds.
type VerifyReport struct {
	Indexed  int `json:"indexed"`
	Expected int `json:"expected"`
	// Missing are ids with a valid stored embedding that the index lacks.
	// Retrieval cannot find them until the index is rebuilt.
	Missing []int64 `json:"missing,omitempty"`
	// Stale are indexed ids with no indexable row, typically soft-deleted
	// chunks. Retrieval drops them, so they cost only over-fetch capacity.
	Stale []int64 `json:"stale,omitempty"`
}

// Consistent reports whether index and store agree exactly.
func (r *VerifyReport) Consistent() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0
}

// Rebuilder reconstructs the vector index from the store's embeddings.
type Rebuilder struct {
	store           store.MetadataStore
	index           store.VectorIndex
	indexPath       string
	includeInactive bool
	batchSize       int
	log             *slog.Logger
}

func NewRebuilder(cfg RebuilderConfig) (*Rebuilder, error) {
	if cfg.Store == nil || cfg.Index == nil {
		return nil, dserr.New(dserr.CodeRetrievalRebuildFailure, "rebuilder requires a store and an index")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultRebuildBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Rebuilder{
		store:           cfg.Store,
		index:           cfg.Index,
		indexPath:       cfg.IndexPath,
		includeInactive: cfg.IncludeInactive,
		batchSize:       batch,
		log:             log,
	}, nil
}

// Rebuild replaces the index contents with every valid stored embedding,
// each under its chunk's store id, then persists the index. Rows with a
// wrong dimension, an unreadable encoding, or a non-unit norm are skipped
// and counted. If streaming fails the previous index contents are kept.
func (r *Rebuilder) Rebuild(ctx context.Context) (*RebuildReport, error) {
	started := time.Now()
	report := &RebuildReport{IncludeInactive: r.includeInactive}

	err := r.index.Rebuild(ctx, func(add func([]int64, [][]float32) error) error {
		ids := make([]int64, 0, r.batchSize)
		vecs := make([][]float32, 0, r.batchSize)

		flush := func() error {
			if len(ids) == 0 {
				return nil
			}
			if err := add(ids, vecs); err != nil {
				return err
			}
			report.Rebuilt += len(ids)
			ids = ids[:0]
			vecs = vecs[:0]
			return nil
		}

		err := r.store.Chunks().StreamEmbeddings(ctx, r.includeInactive, func(row store.EmbeddingRow) error {
			vec, ok := r.decode(ctx, row, report)
			if !ok {
				return nil
			}
			ids = append(ids, row.ID)
			vecs = append(vecs, vec)
			if len(ids) == r.batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	})
	if err != nil {
		return nil, dserr.Wrapf(err, dserr.CodeRetrievalRebuildFailure, "rebuilding vector index")
	}

	if r.indexPath != "" {
		if err := r.index.Persist(ctx, r.indexPath); err != nil {
			return nil, err
		}
	}
	report.Elapsed = time.Since(started)

	r.log.InfoContext(ctx, "vector index rebuilt",
		slog.Int("rebuilt", report.Rebuilt),
		slog.Int("skipped_bad_dimension", report.SkippedBadDimension),
		slog.Int("skipped_bad_encoding", report.SkippedBadEncoding),
		slog.Int("skipped_not_normalized", report.SkippedNotNormalized),
		slog.Bool("include_inactive", r.includeInactive),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// decode returns the row's vector when it can be indexed, and counts it
// against the matching skip reason otherwise.
func (r *Rebuilder) decode(ctx context.Context, row store.EmbeddingRow, report *RebuildReport) ([]float32, bool) {
	vec, err := store.DecodeEmbedding(row.Raw)
	if err != nil {
		report.SkippedBadEncoding++
		r.log.DebugContext(ctx, "skipping unreadable embedding",
			slog.Int64("id", row.ID), slog.String("chunk_id", row.ChunkID), slog.Any("error", err))
		return nil, false
	}
	if err := store.CheckVector(vec, r.index.Dimension()); err != nil {
		if dserr.IsDimensionMismatch(err) {
			report.SkippedBadDimension++
		} else {
			report.SkippedNotNormalized++
		}
		r.log.DebugContext(ctx, "skipping embedding",
			slog.Int64("id", row.ID), slog.String("chunk_id", row.ChunkID), slog.Any("error", err))
		return nil, false
	}
	return vec, true
}

// Verify compares the indexed ids with the ids a rebuild would produce.
func (r *Rebuilder) Verify(ctx context.Context) (*VerifyReport, error) {
	indexed, err := r.index.IDs(ctx)
	if err != nil {
		return nil, err
	}

	// Rows stream in id order, so expected is sorted.
	var expected []int64
	scratch := &RebuildReport{}
	err = r.store.Chunks().StreamEmbeddings(ctx, r.includeInactive, func(row store.EmbeddingRow) error {
		if _, ok := r.decode(ctx, row, scratch); ok {
			expected = append(expected, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Indexed: len(indexed), Expected: len(expected)}
	want := make(map[int64]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}
	}
	have := make(map[int64]struct{}, len(indexed))
	for _, id := range indexed {
		have[id] = struct{}{}
		if _, ok := want[id]; !ok {
			report.Stale = append(report.Stale, id)
		}
	}
	for _, id := range expected {
		if _, ok := have[id]; !ok {
			report.Missing = append(report.Missing, id)
		}
	}
	return report, nil
}
