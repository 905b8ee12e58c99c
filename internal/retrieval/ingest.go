// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval

import (
	"context"
	"log/slog"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Rejection records why one chunk was not fully ingested.
type Rejection struct {
	ChunkID string     `json:"chunk_id"`
	Code    dserr.Code `json:"code"`
	Reason  string     `json:"reason"`
}

// IngestReport summarises one Ingest call.
type IngestReport struct {
	DocumentID string `json:"document_id"`
	// Inserted counts new rows, whether or not their vector was indexed.
	Inserted   int `json:"inserted"`
	Indexed    int `json:"indexed"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
	// VectorRejected counts new rows whose embedding the index refused.
	VectorRejected int `json:"vector_rejected"`
	Unembedded     int `json:"unembedded"`

	Rejections []Rejection `json:"rejections,omitempty"`
}

// IngestorConfig holds dependencies for the Ingestor.
type IngestorConfig struct {
	Store store.MetadataStore
	Index store.VectorIndex
	// IndexPath, when set, is where the index is persisted after every batch
	// that added vectors.
	IndexPath string
	Logger    *slog.Logger
}

// Ingestor writes chunking-pipeline output into the store and the index.
type Ingestor struct {
	store     store.MetadataStore
	index     store.VectorIndex
	indexPath string
	log       *slog.Logger
}

func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Store == nil || cfg.Index == nil {
		return nil, dserr.New(dserr.CodeRetrievalIngestInvalid, "ingestor requires a store and an index")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		store:     cfg.Store,
		index:     cfg.Index,
		indexPath: cfg.IndexPath,
		log:       log,
	}, nil
}

// Ingest records the document, registers every chunk, refreshes the document
// counters, and persists the index. Re-ingesting the same batch is a no-op
// apart from the status bookkeeping.
//
// Invalid chunks and refused vectors are reported and skipped. A storage
// failure aborts the batch, marks the document failed, and is returned along
// with the partial report.
func (g *Ingestor) Ingest(ctx context.Context, batch *IngestBatch) (*IngestReport, error) {
	if batch == nil {
		return nil, dserr.New(dserr.CodeRetrievalIngestInvalid, "ingest batch is nil")
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	report := &IngestReport{DocumentID: batch.DocumentID}
	docs := g.store.Documents()

	if err := docs.Upsert(ctx, batch.document()); err != nil {
		return nil, err
	}
	if err := docs.SetStatus(ctx, batch.DocumentID, store.StatusProcessing, ""); err != nil {
		return nil, err
	}

	if batch.EmbeddingDim > 0 && batch.EmbeddingDim != g.index.Dimension() {
		g.log.WarnContext(ctx, "batch embedding dimension differs from index",
			slog.String("document_id", batch.DocumentID),
			slog.Int("batch_dim", batch.EmbeddingDim),
			slog.Int("index_dim", g.index.Dimension()),
			slog.String("model", batch.ModelName),
		)
	}

	for _, c := range batch.Chunks {
		if err := g.ingestChunk(ctx, batch.chunk(c), report); err != nil {
			g.fail(ctx, batch.DocumentID, err)
			return report, err
		}
	}

	if err := docs.RefreshCounters(ctx, batch.DocumentID); err != nil {
		g.fail(ctx, batch.DocumentID, err)
		return report, err
	}

	if report.Indexed > 0 && g.indexPath != "" {
		if err := g.index.Persist(ctx, g.indexPath); err != nil {
			g.fail(ctx, batch.DocumentID, err)
			return report, err
		}
	}

	if err := docs.SetStatus(ctx, batch.DocumentID, store.StatusCompleted, ""); err != nil {
		return report, err
	}

	g.log.InfoContext(ctx, "document ingested",
		slog.String("document_id", report.DocumentID),
		slog.Int("inserted", report.Inserted),
		slog.Int("indexed", report.Indexed),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("invalid", report.Invalid),
		slog.Int("vector_rejected", report.VectorRejected),
	)
	return report, nil
}

func (g *Ingestor) ingestChunk(ctx context.Context, chunk *store.Chunk, report *IngestReport) error {
	reg, err := Register(ctx, g.store.Chunks(), g.index, chunk)
	if err != nil {
		if dserr.IsInvalidInput(err) {
			report.Invalid++
			report.reject(chunk.ChunkID, err)
			g.log.WarnContext(ctx, "chunk rejected",
				slog.String("chunk_id", chunk.ChunkID), slog.Any("error", err))
			return nil
		}
		return err
	}

	switch {
	case reg.Duplicate:
		report.Duplicates++
		g.log.DebugContext(ctx, "chunk already exists", slog.String("chunk_id", chunk.ChunkID))
	case reg.VectorErr != nil:
		report.Inserted++
		report.VectorRejected++
		report.reject(chunk.ChunkID, reg.VectorErr)
		g.log.WarnContext(ctx, "vector rejected; row kept",
			slog.String("chunk_id", chunk.ChunkID),
			slog.Int64("id", reg.ID),
			slog.Any("error", reg.VectorErr),
		)
	case reg.Indexed:
		report.Inserted++
		report.Indexed++
	default:
		report.Inserted++
		report.Unembedded++
	}
	return nil
}

func (g *Ingestor) fail(ctx context.Context, documentID string, cause error) {
	if err := g.store.Documents().SetStatus(ctx, documentID, store.StatusFailed, cause.Error()); err != nil {
		g.log.ErrorContext(ctx, "marking document failed",
			slog.String("document_id", documentID), slog.Any("error", err))
	}
}

func (r *IngestReport) reject(chunkID string, err error) {
	r.Rejections = append(r.Rejections, Rejection{
		ChunkID: chunkID,
		Code:    dserr.CodeOf(err),
		Reason:  err.Error(),
	})
}
