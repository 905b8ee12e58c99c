// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"time"

	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

// NoOp is the id InsertChunk returns when the chunk_id already existed and
// nothing was written. Stored ids start at 1.
const NoOp int64 = 0

// Roles granting access to every caller.
const RoleAll = "all"

// Chunk defaults applied on insert when the caller leaves a field empty.
const (
	DefaultVersion         = "1.0"
	DefaultLanguage        = "vi"
	DefaultConfidentiality = "internal"
	DefaultAuthor          = "Unknown"
	DefaultCategory        = "Uncategorized"
	DefaultAuditUser       = "system"
)

// --- Chunks ---

// Chunk is one retrievable unit of a document. ID is assigned by the store on
// first insert and is the same integer the vector index is keyed by.
type Chunk struct {
	ID         int64
	ChunkID    string
	DocumentID string

	Title    string
	Source   string
	Version  string
	Language string

	Text       string
	TokenCount int

	Heading           string
	HeadingLevel      int
	SectionIndex      int
	SectionChunkIndex int
	StartPage         int
	EndPage           int

	IsActive      bool
	InvalidatedBy string // empty means NULL

	AccessRoles          []string
	ConfidentialityLevel string
	Author               string
	Category             string
	Keywords             []string
	Summary              string
	Metadata             map[string]any

	// Embedding is only populated on the write path. Read paths leave it nil;
	// use ChunkStore.StreamEmbeddings to read stored vectors.
	Embedding []float32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Visible reports whether the chunk participates in retrieval.
func (c *Chunk) Visible() bool {
	return c.IsActive && c.InvalidatedBy == ""
}

// EmbeddingRow is a stored embedding as read back for an index rebuild.
// Raw is the persisted encoding; decoding is left to the caller so that bad
// encodings can be counted rather than aborting the scan.
type EmbeddingRow struct {
	ID      int64
	ChunkID string
	Raw     string
}

// OrderColumn is a whitelisted chunk column usable in ORDER BY.
type OrderColumn string

const (
	OrderByUpdatedAt  OrderColumn = "updated_at"
	OrderByCreatedAt  OrderColumn = "created_at"
	OrderByID         OrderColumn = "id"
	OrderByTitle      OrderColumn = "title"
	OrderByTokenCount OrderColumn = "token_count"
)

// ChunkQuery describes the admission criteria for chunk lookups. The mandatory
// visibility predicate (active and not invalidated) is always applied.
type ChunkQuery struct {
	IDs         []int64
	DocumentIDs []string
	Categories  []string
	Languages   []string

	// TextSearch is a substring match over text, title, and heading.
	TextSearch string

	// UserRoles restricts results to chunks whose access roles contain "all" or
	// intersect this set. Nil or empty applies no role restriction.
	UserRoles []string

	UpdatedFrom time.Time
	UpdatedTo   time.Time

	OrderBy   OrderColumn
	OrderDesc bool
	Limit     int
	Offset    int
}

// ChunkStatistics aggregates active chunks.
type ChunkStatistics struct {
	TotalChunks   int64
	TotalTokens   int64
	AvgTokens     float64
	Categories    []GroupCount
	Languages     []GroupCount
	RecentUpdates []GroupCount // per day, last 7 days
}

// GroupCount is one bucket of a GROUP BY aggregate.
type GroupCount struct {
	Key   string
	Count int64
}

// --- Documents ---

// ProcessingStatus is the ingestion lifecycle state of a document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is the parent record of a set of chunks.
type Document struct {
	DocumentID string
	Title      string
	Source     string
	Version    string
	Language   string
	Author     string
	Category   string

	TotalChunks int
	TotalTokens int
	FileSize    int64
	FileHash    string

	// Status left empty on upsert keeps the stored status (pending for new rows).
	Status        ProcessingStatus
	ErrorMessage  string
	LastProcessed time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Audit ---

// Audit actions.
const (
	AuditActionSoftDelete = "SOFT_DELETE"
)

// AuditEntry is an append-only record of a mutation.
type AuditEntry struct {
	ID        int64
	TableName string
	RecordID  int64
	Action    string
	OldValues map[string]any
	NewValues map[string]any
	UserID    string
	Reason    string
	Timestamp time.Time
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	TableName string
	RecordID  int64
	Action    string
	UserID    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// --- Analytics ---

// SearchLog is one logged retrieval request.
type SearchLog struct {
	ID            int64
	QueryText     string
	ResultsCount  int
	TopChunkIDs   []int64
	SearchTimeMS  int64
	UserID        string
	SessionID     string
	Timestamp     time.Time
	FeedbackScore *int
}

// --- Maintenance ---

// DatabaseStats summarises the metadata database.
type DatabaseStats struct {
	TotalChunks     int64
	ActiveChunks    int64
	InactiveChunks  int64
	TotalDocuments  int64
	SearchesLast24h int64
	SizeBytes       int64
}

// SizeMB reports the database size in megabytes.
func (s DatabaseStats) SizeMB() float64 {
	return float64(s.SizeBytes) / (1024 * 1024)
}

// ConsistencyReport counts integrity problems found by a scan.
type ConsistencyReport struct {
	OrphanedChunks    int64
	DuplicateChunkIDs int64
	InvalidEmbeddings int64
}

// Clean reports whether the scan found nothing.
func (r ConsistencyReport) Clean() bool {
	return r.OrphanedChunks == 0 && r.DuplicateChunkIDs == 0 && r.InvalidEmbeddings == 0
}

// HealthReport is the result of a metadata store health check.
type HealthReport struct {
	health.Report
	Stats       DatabaseStats
	Consistency ConsistencyReport
}
