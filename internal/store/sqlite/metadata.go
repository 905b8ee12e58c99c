// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.MetadataStore  = (*MetadataStore)(nil)
	_ store.ChunkStore     = (*chunkStore)(nil)
	_ store.DocumentStore  = (*documentStore)(nil)
	_ store.AuditStore     = (*auditStore)(nil)
	_ store.AnalyticsStore = (*analyticsStore)(nil)
)

// Health thresholds.
const (
	sizeWarningBytes      = 1000 * 1024 * 1024
	inactiveWarningRatio  = 0.3
	searchWindow          = 24 * time.Hour
	recentUpdatesWindow   = 7 * 24 * time.Hour
	defaultChunkLimit     = 100
	defaultAuditLimit     = 1000
	defaultAnalyticsLimit = 100
)

// MetadataStore implements store.MetadataStore backed by a single SQLite
// database holding documents, chunks, audit_log, and search_analytics.
type MetadataStore struct {
	db        *sql.DB
	path      string
	chunks    *chunkStore
	documents *documentStore
	audit     *auditStore
	analytics *analyticsStore
	now       func() time.Time
}

// NewMetadataStore opens (or creates) a SQLite database at dbPath and
// initialises the schema.
func NewMetadataStore(dbPath string) (*MetadataStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "opening metadata db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "pinging metadata db: %w", err)
	}

	if err := migrateMetadata(db); err != nil {
		_ = db.Close()
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "migrating metadata db: %w", err)
	}

	s := &MetadataStore{db: db, path: dbPath, now: time.Now}
	s.chunks = &chunkStore{db: db, now: s.clock}
	s.documents = &documentStore{db: db, now: s.clock}
	s.audit = &auditStore{db: db}
	s.analytics = &analyticsStore{db: db, now: s.clock}
	return s, nil
}

func (s *MetadataStore) clock() time.Time { return s.now() }

func migrateMetadata(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	document_id       TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	source            TEXT NOT NULL,
	version           TEXT NOT NULL DEFAULT '1.0',
	language          TEXT NOT NULL DEFAULT 'vi',
	author            TEXT NOT NULL DEFAULT 'Unknown',
	category          TEXT NOT NULL DEFAULT 'Uncategorized',
	total_chunks      INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	file_size         INTEGER NOT NULL DEFAULT 0,
	file_hash         TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'pending',
	error_message     TEXT NOT NULL DEFAULT '',
	last_processed    TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id              TEXT NOT NULL UNIQUE,
	document_id           TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
	title                 TEXT NOT NULL,
	source                TEXT NOT NULL,
	version               TEXT NOT NULL DEFAULT '1.0',
	language              TEXT NOT NULL DEFAULT 'vi',
	text                  TEXT NOT NULL,
	token_count           INTEGER NOT NULL DEFAULT 0,
	heading               TEXT NOT NULL DEFAULT '',
	heading_level         INTEGER NOT NULL DEFAULT 1,
	section_index         INTEGER NOT NULL DEFAULT 0,
	section_chunk_index   INTEGER NOT NULL DEFAULT 0,
	start_page            INTEGER NOT NULL DEFAULT 1,
	end_page              INTEGER NOT NULL DEFAULT 1,
	is_active             INTEGER NOT NULL DEFAULT 1,
	invalidated_by        TEXT,
	access_roles          TEXT NOT NULL DEFAULT '["all"]',
	confidentiality_level TEXT NOT NULL DEFAULT 'internal',
	author                TEXT NOT NULL DEFAULT 'Unknown',
	category              TEXT NOT NULL DEFAULT 'Uncategorized',
	keywords              TEXT NOT NULL DEFAULT '[]',
	summary               TEXT NOT NULL DEFAULT '',
	metadata              TEXT NOT NULL DEFAULT '{}',
	embedding             TEXT,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_visible ON chunks(is_active, invalidated_by);
CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks(category);
CREATE INDEX IF NOT EXISTS idx_chunks_updated ON chunks(updated_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name TEXT NOT NULL,
	record_id  INTEGER NOT NULL,
	action     TEXT NOT NULL,
	old_values TEXT NOT NULL DEFAULT '{}',
	new_values TEXT NOT NULL DEFAULT '{}',
	user_id    TEXT NOT NULL DEFAULT 'system',
	reason     TEXT NOT NULL DEFAULT '',
	timestamp  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_record ON audit_log(table_name, record_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TABLE IF NOT EXISTS search_analytics (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	query_text     TEXT NOT NULL,
	results_count  INTEGER NOT NULL DEFAULT 0,
	top_chunk_ids  TEXT NOT NULL DEFAULT '[]',
	search_time_ms INTEGER NOT NULL DEFAULT 0,
	user_id        TEXT NOT NULL DEFAULT '',
	session_id     TEXT NOT NULL DEFAULT '',
	timestamp      TEXT NOT NULL,
	feedback_score INTEGER
);

CREATE INDEX IF NOT EXISTS idx_search_timestamp ON search_analytics(timestamp);
`
	_, err := db.Exec(ddl)
	return err
}

// Chunks returns the chunk sub-store.
func (s *MetadataStore) Chunks() store.ChunkStore { return s.chunks }

// Documents returns the document sub-store.
func (s *MetadataStore) Documents() store.DocumentStore { return s.documents }

// AuditLog returns the audit sub-store.
func (s *MetadataStore) AuditLog() store.AuditStore { return s.audit }

// Analytics returns the search analytics sub-store.
func (s *MetadataStore) Analytics() store.AnalyticsStore { return s.analytics }

// Close closes the underlying database connection.
func (s *MetadataStore) Close() error { return s.db.Close() }

// Stats summarises row counts and the on-disk size.
func (s *MetadataStore) Stats(ctx context.Context) (*store.DatabaseStats, error) {
	var st store.DatabaseStats

	const counts = `SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN is_active = 1 AND invalidated_by IS NULL THEN 1 ELSE 0 END), 0)
FROM chunks`
	if err := s.db.QueryRowContext(ctx, counts).Scan(&st.TotalChunks, &st.ActiveChunks); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "counting chunks: %w", err)
	}
	st.InactiveChunks = st.TotalChunks - st.ActiveChunks

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.TotalDocuments); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "counting documents: %w", err)
	}

	cutoff := formatTime(s.now().Add(-searchWindow))
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_analytics WHERE timestamp >= ?`, cutoff,
	).Scan(&st.SearchesLast24h); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "counting recent searches: %w", err)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "reading page_size: %w", err)
	}
	st.SizeBytes = pageCount * pageSize

	return &st, nil
}

// ChunkStatistics aggregates visible chunks by category, language, and day.
// A non-empty documentID limits every aggregate to that document.
func (s *MetadataStore) ChunkStatistics(ctx context.Context, documentID string) (*store.ChunkStatistics, error) {
	var st store.ChunkStatistics

	scope, args := "", []any{}
	if documentID != "" {
		scope, args = " AND document_id = ?", []any{documentID}
	}

	totals := `SELECT COUNT(*), COALESCE(SUM(token_count), 0), COALESCE(AVG(token_count), 0)
FROM chunks WHERE is_active = 1 AND invalidated_by IS NULL` + scope
	if err := s.db.QueryRowContext(ctx, totals, args...).Scan(&st.TotalChunks, &st.TotalTokens, &st.AvgTokens); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "aggregating chunks: %w", err)
	}

	var err error
	st.Categories, err = s.groupCounts(ctx, `SELECT category, COUNT(*) FROM chunks
WHERE is_active = 1 AND invalidated_by IS NULL`+scope+`
GROUP BY category ORDER BY COUNT(*) DESC, category ASC`, args...)
	if err != nil {
		return nil, err
	}

	st.Languages, err = s.groupCounts(ctx, `SELECT language, COUNT(*) FROM chunks
WHERE is_active = 1 AND invalidated_by IS NULL`+scope+`
GROUP BY language ORDER BY COUNT(*) DESC, language ASC`, args...)
	if err != nil {
		return nil, err
	}

	cutoff := formatTime(s.now().Add(-recentUpdatesWindow))
	st.RecentUpdates, err = s.groupCounts(ctx, `SELECT substr(updated_at, 1, 10) AS day, COUNT(*) FROM chunks
WHERE updated_at >= ?`+scope+`
GROUP BY day ORDER BY day DESC`, append([]any{cutoff}, args...)...)
	if err != nil {
		return nil, err
	}

	return &st, nil
}

func (s *MetadataStore) groupCounts(ctx context.Context, q string, args ...any) ([]store.GroupCount, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "grouping chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []store.GroupCount
	for rows.Next() {
		var g store.GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning group count: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ScanConsistency counts orphaned chunks, duplicate chunk ids, and stored
// embeddings that are not valid JSON.
func (s *MetadataStore) ScanConsistency(ctx context.Context) (*store.ConsistencyReport, error) {
	var r store.ConsistencyReport

	const orphans = `SELECT COUNT(*) FROM chunks c
LEFT JOIN documents d ON d.document_id = c.document_id
WHERE d.document_id IS NULL`
	if err := s.db.QueryRowContext(ctx, orphans).Scan(&r.OrphanedChunks); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning orphaned chunks: %w", err)
	}

	const duplicates = `SELECT COUNT(*) FROM (
	SELECT chunk_id FROM chunks GROUP BY chunk_id HAVING COUNT(*) > 1
)`
	if err := s.db.QueryRowContext(ctx, duplicates).Scan(&r.DuplicateChunkIDs); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning duplicate chunk ids: %w", err)
	}

	const invalid = `SELECT COUNT(*) FROM chunks
WHERE embedding IS NOT NULL AND embedding != '' AND json_valid(embedding) = 0`
	if err := s.db.QueryRowContext(ctx, invalid).Scan(&r.InvalidEmbeddings); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning embeddings: %w", err)
	}

	return &r, nil
}

// HealthCheck probes connectivity and reports integrity issues and warnings.
// It never returns nil; an unreachable database yields StatusError.
func (s *MetadataStore) HealthCheck(ctx context.Context) *store.HealthReport {
	report := &store.HealthReport{}
	defer func() { report.Finalize(s.now()) }()

	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		report.Fail(fmt.Sprintf("database unreachable: %v", err))
		return report
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		report.Fail(err.Error())
		return report
	}
	report.Stats = *stats

	consistency, err := s.ScanConsistency(ctx)
	if err != nil {
		report.Fail(err.Error())
		return report
	}
	report.Consistency = *consistency

	if consistency.OrphanedChunks > 0 {
		report.Issue(fmt.Sprintf("found %d orphaned chunks", consistency.OrphanedChunks))
	}
	if consistency.DuplicateChunkIDs > 0 {
		report.Issue(fmt.Sprintf("found %d duplicate chunk ids", consistency.DuplicateChunkIDs))
	}
	if consistency.InvalidEmbeddings > 0 {
		report.Issue(fmt.Sprintf("found %d chunks with invalid embeddings", consistency.InvalidEmbeddings))
	}

	if stats.SizeBytes > sizeWarningBytes {
		report.Warn(fmt.Sprintf("database size is large: %.1fMB", stats.SizeMB()))
	}
	if stats.TotalChunks > 0 {
		ratio := float64(stats.InactiveChunks) / float64(stats.TotalChunks)
		if ratio > inactiveWarningRatio {
			report.Warn(fmt.Sprintf("high inactive chunk ratio: %.1f%%", ratio*100))
		}
	}

	return report
}

// Backup writes an online copy of the database to path.
func (s *MetadataStore) Backup(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "creating backup directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return dserr.Errorf(dserr.CodeStoreInvalidInput, "backup target %s already exists", path)
	}

	src, err := s.db.Conn(ctx)
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "acquiring connection: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := backupToFile(ctx, src, path); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "backing up to %s: %w", path, err)
	}
	return nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func (s *MetadataStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "vacuum: %w", err)
	}
	return nil
}

// Analyze refreshes the query planner statistics.
func (s *MetadataStore) Analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "analyze: %w", err)
	}
	return nil
}
