// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"context"
	"time"
)

// MetadataStore is the system of record for documents, chunks, the audit
// trail, and search analytics. It is the sole allocator of chunk ids.
type MetadataStore interface {
	Chunks() ChunkStore
	Documents() DocumentStore
	AuditLog() AuditStore
	Analytics() AnalyticsStore

	Stats(ctx context.Context) (*DatabaseStats, error)
	ChunkStatistics(ctx context.Context, documentID string) (*ChunkStatistics, error)
	ScanConsistency(ctx context.Context) (*ConsistencyReport, error)
	HealthCheck(ctx context.Context) *HealthReport

	// Backup writes an online copy of the database to path.
	Backup(ctx context.Context, path string) error
	Vacuum(ctx context.Context) error
	Analyze(ctx context.Context) error

	Close() error
}

// ChunkStore manages chunk rows.
type ChunkStore interface {
	// Insert persists chunk and returns its store id. If chunk_id already
	// exists nothing is written and NoOp is returned.
	Insert(ctx context.Context, chunk *Chunk) (int64, error)
	Get(ctx context.Context, chunkID string) (*Chunk, error)
	GetActive(ctx context.Context, documentID string) ([]*Chunk, error)
	// GetByIDs returns visible chunks keyed by store id. Missing, inactive,
	// and invalidated ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*Chunk, error)
	Search(ctx context.Context, query ChunkQuery) ([]*Chunk, error)
	// SoftDelete marks the chunk inactive and appends an audit entry in the
	// same transaction. It reports false when the chunk does not exist.
	SoftDelete(ctx context.Context, chunkID, invalidatedBy, reason, userID string) (bool, error)
	// StreamEmbeddings calls fn for every chunk with a stored embedding,
	// in id order.
	StreamEmbeddings(ctx context.Context, includeInactive bool, fn func(EmbeddingRow) error) error
	CountEmbedded(ctx context.Context, includeInactive bool) (int64, error)
}

// DocumentStore manages document rows.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *Document) error
	Get(ctx context.Context, documentID string) (*Document, error)
	SetStatus(ctx context.Context, documentID string, status ProcessingStatus, errMsg string) error
	// RefreshCounters recomputes total_chunks and total_tokens from the
	// document's visible chunks.
	RefreshCounters(ctx context.Context, documentID string) error
}

// AuditStore reads the append-only audit log.
type AuditStore interface {
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AnalyticsStore records retrieval requests.
type AnalyticsStore interface {
	LogSearch(ctx context.Context, entry *SearchLog) (int64, error)
	RecordFeedback(ctx context.Context, searchID int64, score int) error
	Recent(ctx context.Context, limit int) ([]*SearchLog, error)
	// Cleanup prunes search logs older than the cutoff and returns the
	// number removed. The audit log is never pruned.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}
