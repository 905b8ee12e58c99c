// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// chunkColumns is every chunk column except embedding, in scanChunk order.
const chunkColumns = `id, chunk_id, document_id, title, source, version, language,
text, token_count, heading, heading_level, section_index, section_chunk_index,
start_page, end_page, is_active, invalidated_by, access_roles, confidentiality_level,
author, category, keywords, summary, metadata, created_at, updated_at`

type chunkStore struct {
	db  *sql.DB
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *chunkStore) Insert(ctx context.Context, chunk *store.Chunk) (int64, error) {
	if err := chunk.Validate(); err != nil {
		return store.NoOp, err
	}

	c := *chunk
	c.ApplyDefaults()

	embedding, err := store.EncodeEmbedding(c.Embedding)
	if err != nil {
		return store.NoOp, err
	}
	roles, keywords, metadata, err := encodeChunkJSON(&c)
	if err != nil {
		return store.NoOp, err
	}

	now := formatTime(s.now())

	const q = `INSERT INTO chunks (
	chunk_id, document_id, title, source, version, language,
	text, token_count, heading, heading_level, section_index, section_chunk_index,
	start_page, end_page, is_active, invalidated_by, access_roles, confidentiality_level,
	author, category, keywords, summary, metadata, embedding, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, q,
		c.ChunkID, c.DocumentID, c.Title, c.Source, c.Version, c.Language,
		c.Text, c.TokenCount, c.Heading, c.HeadingLevel, c.SectionIndex, c.SectionChunkIndex,
		c.StartPage, c.EndPage, roles, c.ConfidentialityLevel,
		c.Author, c.Category, keywords, c.Summary, metadata, nullString(embedding), now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return store.NoOp, dserr.New(dserr.CodeStoreChunkInsertInvalid, "chunk references unknown document",
				dserr.FieldChunkID(c.ChunkID), dserr.FieldDocumentID(c.DocumentID))
		}
		return store.NoOp, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "inserting chunk", dserr.FieldChunkID(c.ChunkID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return store.NoOp, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "reading rows affected", dserr.FieldChunkID(c.ChunkID))
	}
	if affected == 0 {
		return store.NoOp, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return store.NoOp, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "reading chunk id", dserr.FieldChunkID(c.ChunkID))
	}
	return id, nil
}

func (s *chunkStore) Get(ctx context.Context, chunkID string) (*store.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dserr.Wrap(store.ErrNotFound, dserr.CodeStoreChunkNotFound, "chunk not found", dserr.FieldChunkID(chunkID))
	}
	if err != nil {
		return nil, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "getting chunk", dserr.FieldChunkID(chunkID))
	}
	return c, nil
}

// GetActive returns visible chunks in document and section order. An empty
// documentID spans every document.
func (s *chunkStore) GetActive(ctx context.Context, documentID string) ([]*store.Chunk, error) {
	f := NewChunkFilter()
	if documentID != "" {
		f.DocumentIDs([]string{documentID})
	}
	where, args := f.Build()
	q := `SELECT ` + chunkColumns + ` FROM chunks WHERE ` + where +
		` ORDER BY document_id ASC, section_index ASC, section_chunk_index ASC, id ASC`
	return s.query(ctx, q, args...)
}

func (s *chunkStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]*store.Chunk, error) {
	out := make(map[int64]*store.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	where, args := NewChunkFilter().IDs(ids).Build()
	chunks, err := s.query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out, nil
}

func (s *chunkStore) Search(ctx context.Context, query store.ChunkQuery) ([]*store.Chunk, error) {
	q, args, err := BuildChunkQuery(query)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q, args...)
}

func (s *chunkStore) SoftDelete(ctx context.Context, chunkID, invalidatedBy, reason, userID string) (bool, error) {
	if userID == "" {
		userID = store.DefaultAuditUser
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+chunkColumns+`, embedding FROM chunks WHERE chunk_id = ?`, chunkID)
	before, rawEmbedding, err := scanChunkWithEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "loading chunk snapshot", dserr.FieldChunkID(chunkID))
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE chunks SET is_active = 0, invalidated_by = ?, updated_at = ? WHERE id = ?`,
		nullString(invalidatedBy), formatTime(now), before.ID,
	); err != nil {
		return false, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "soft-deleting chunk", dserr.FieldChunkID(chunkID))
	}

	oldValues, err := json.Marshal(chunkSnapshot(before, rawEmbedding))
	if err != nil {
		return false, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "encoding chunk snapshot", dserr.FieldChunkID(chunkID))
	}
	newValues, err := json.Marshal(map[string]any{
		"is_active":      false,
		"invalidated_by": nullableValue(invalidatedBy),
		"updated_at":     formatTime(now),
	})
	if err != nil {
		return false, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "encoding audit values", dserr.FieldChunkID(chunkID))
	}

	if err := appendAudit(ctx, tx, &store.AuditEntry{
		TableName: "chunks",
		RecordID:  before.ID,
		Action:    store.AuditActionSoftDelete,
		UserID:    userID,
		Reason:    reason,
		Timestamp: now,
	}, string(oldValues), string(newValues)); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "committing soft delete: %w", err)
	}
	return true, nil
}

func (s *chunkStore) StreamEmbeddings(ctx context.Context, includeInactive bool, fn func(store.EmbeddingRow) error) error {
	q := `SELECT id, chunk_id, embedding FROM chunks WHERE embedding IS NOT NULL AND embedding != ''`
	if !includeInactive {
		q += ` AND is_active = 1 AND invalidated_by IS NULL`
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "querying embeddings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	for rows.Next() {
		var r store.EmbeddingRow
		if err := rows.Scan(&r.ID, &r.ChunkID, &r.Raw); err != nil {
			return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning embedding row: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "iterating embeddings: %w", err)
	}
	return nil
}

func (s *chunkStore) CountEmbedded(ctx context.Context, includeInactive bool) (int64, error) {
	q := `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL AND embedding != ''`
	if !includeInactive {
		q += ` AND is_active = 1 AND invalidated_by IS NULL`
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "counting embeddings: %w", err)
	}
	return n, nil
}

func (s *chunkStore) query(ctx context.Context, q string, args ...any) ([]*store.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "querying chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var chunks []*store.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "iterating chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(sc rowScanner) (*store.Chunk, error) {
	c, _, err := scanChunkRow(sc, false)
	return c, err
}

func scanChunkWithEmbedding(sc rowScanner) (*store.Chunk, sql.NullString, error) {
	return scanChunkRow(sc, true)
}

func scanChunkRow(sc rowScanner, withEmbedding bool) (*store.Chunk, sql.NullString, error) {
	var (
		c                         store.Chunk
		active                    int
		invalidatedBy             sql.NullString
		roles, keywords, metadata string
		createdAt, updatedAt      string
		embedding                 sql.NullString
	)

	dest := []any{
		&c.ID, &c.ChunkID, &c.DocumentID, &c.Title, &c.Source, &c.Version, &c.Language,
		&c.Text, &c.TokenCount, &c.Heading, &c.HeadingLevel, &c.SectionIndex, &c.SectionChunkIndex,
		&c.StartPage, &c.EndPage, &active, &invalidatedBy, &roles, &c.ConfidentialityLevel,
		&c.Author, &c.Category, &keywords, &c.Summary, &metadata, &createdAt, &updatedAt,
	}
	if withEmbedding {
		dest = append(dest, &embedding)
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, embedding, err
	}

	c.IsActive = active == 1
	c.InvalidatedBy = invalidatedBy.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	if err := decodeJSONColumn(roles, &c.AccessRoles); err != nil {
		return nil, embedding, err
	}
	if err := decodeJSONColumn(keywords, &c.Keywords); err != nil {
		return nil, embedding, err
	}
	if err := decodeJSONColumn(metadata, &c.Metadata); err != nil {
		return nil, embedding, err
	}
	return &c, embedding, nil
}

func encodeChunkJSON(c *store.Chunk) (roles, keywords, metadata string, err error) {
	rb, err := json.Marshal(c.AccessRoles)
	if err != nil {
		return "", "", "", dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "encoding access roles: %w", err)
	}
	kw := c.Keywords
	if kw == nil {
		kw = []string{}
	}
	kb, err := json.Marshal(kw)
	if err != nil {
		return "", "", "", dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "encoding keywords: %w", err)
	}
	meta := "{}"
	if len(c.Metadata) > 0 {
		mb, err := json.Marshal(c.Metadata)
		if err != nil {
			return "", "", "", dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "encoding metadata: %w", err)
		}
		meta = string(mb)
	}
	return string(rb), string(kb), meta, nil
}

func decodeJSONColumn(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// chunkSnapshot captures a chunk row as stored, keyed by column name.
func chunkSnapshot(c *store.Chunk, embedding sql.NullString) map[string]any {
	return map[string]any{
		"id":                    c.ID,
		"chunk_id":              c.ChunkID,
		"document_id":           c.DocumentID,
		"title":                 c.Title,
		"source":                c.Source,
		"version":               c.Version,
		"language":              c.Language,
		"text":                  c.Text,
		"token_count":           c.TokenCount,
		"heading":               c.Heading,
		"heading_level":         c.HeadingLevel,
		"section_index":         c.SectionIndex,
		"section_chunk_index":   c.SectionChunkIndex,
		"start_page":            c.StartPage,
		"end_page":              c.EndPage,
		"is_active":             c.IsActive,
		"invalidated_by":        nullableValue(c.InvalidatedBy),
		"access_roles":          c.AccessRoles,
		"confidentiality_level": c.ConfidentialityLevel,
		"author":                c.Author,
		"category":              c.Category,
		"keywords":              c.Keywords,
		"summary":               c.Summary,
		"metadata":              c.Metadata,
		"embedding":             nullableValue(embedding.String),
		"created_at":            formatTime(c.CreatedAt),
		"updated_at":            formatTime(c.UpdatedAt),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}
