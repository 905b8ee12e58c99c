// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

const documentColumns = `document_id, title, source, version, language, author, category,
total_chunks, total_tokens, file_size, file_hash, processing_status, error_message,
last_processed, created_at, updated_at`

type documentStore struct {
	db  *sql.DB
	now func() time.Time
}

// Upsert inserts the document or updates it in place. An empty Status keeps
// the stored one; a non-empty Status must be a legal transition from it.
func (s *documentStore) Upsert(ctx context.Context, doc *store.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentStatus(ctx, tx, doc.DocumentID)
	if err != nil {
		return err
	}

	status := doc.Status
	switch {
	case status == "" && current == "":
		status = store.StatusPending
	case status == "":
		status = current
	case !current.CanTransition(status):
		return dserr.Wrap(store.ErrInvalidTransition, dserr.CodeStoreDocumentStatusInvalid,
			"document status "+string(current)+" -> "+string(status), dserr.FieldDocumentID(doc.DocumentID))
	}

	version := doc.Version
	if version == "" {
		version = store.DefaultVersion
	}
	language := doc.Language
	if language == "" {
		language = store.DefaultLanguage
	}
	author := doc.Author
	if author == "" {
		author = store.DefaultAuthor
	}
	category := doc.Category
	if category == "" {
		category = store.DefaultCategory
	}

	now := formatTime(s.now())

	const q = `INSERT INTO documents (
	document_id, title, source, version, language, author, category,
	total_chunks, total_tokens, file_size, file_hash, processing_status, error_message,
	last_processed, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	title             = excluded.title,
	source            = excluded.source,
	version           = excluded.version,
	language          = excluded.language,
	author            = excluded.author,
	category          = excluded.category,
	file_size         = excluded.file_size,
	file_hash         = excluded.file_hash,
	processing_status = excluded.processing_status,
	error_message     = excluded.error_message,
	updated_at        = excluded.updated_at`

	if _, err := tx.ExecContext(ctx, q,
		doc.DocumentID, doc.Title, doc.Source, version, language, author, category,
		doc.TotalChunks, doc.TotalTokens, doc.FileSize, doc.FileHash, string(status), doc.ErrorMessage,
		formatTime(doc.LastProcessed), now, now,
	); err != nil {
		return dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "upserting document", dserr.FieldDocumentID(doc.DocumentID))
	}

	if err := tx.Commit(); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "committing document upsert: %w", err)
	}
	return nil
}

func (s *documentStore) Get(ctx context.Context, documentID string) (*store.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, documentID)

	var (
		d                                   store.Document
		status                              string
		lastProcessed, createdAt, updatedAt string
	)
	err := row.Scan(
		&d.DocumentID, &d.Title, &d.Source, &d.Version, &d.Language, &d.Author, &d.Category,
		&d.TotalChunks, &d.TotalTokens, &d.FileSize, &d.FileHash, &status, &d.ErrorMessage,
		&lastProcessed, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dserr.Wrap(store.ErrNotFound, dserr.CodeStoreDocumentNotFound, "document not found", dserr.FieldDocumentID(documentID))
	}
	if err != nil {
		return nil, dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "getting document", dserr.FieldDocumentID(documentID))
	}

	d.Status = store.ProcessingStatus(status)
	d.LastProcessed = parseTime(lastProcessed)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// SetStatus moves the document through its lifecycle. Terminal states stamp
// last_processed.
func (s *documentStore) SetStatus(ctx context.Context, documentID string, status store.ProcessingStatus, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentStatus(ctx, tx, documentID)
	if err != nil {
		return err
	}
	if current == "" {
		return dserr.Wrap(store.ErrNotFound, dserr.CodeStoreDocumentNotFound, "document not found", dserr.FieldDocumentID(documentID))
	}
	if !current.CanTransition(status) {
		return dserr.Wrap(store.ErrInvalidTransition, dserr.CodeStoreDocumentStatusInvalid,
			"document status "+string(current)+" -> "+string(status), dserr.FieldDocumentID(documentID))
	}

	now := s.now()
	lastProcessed := ""
	if status == store.StatusCompleted || status == store.StatusFailed {
		lastProcessed = formatTime(now)
	}

	const q = `UPDATE documents SET
	processing_status = ?,
	error_message     = ?,
	last_processed    = CASE WHEN ? != '' THEN ? ELSE last_processed END,
	updated_at        = ?
WHERE document_id = ?`
	if _, err := tx.ExecContext(ctx, q,
		string(status), errMsg, lastProcessed, lastProcessed, formatTime(now), documentID,
	); err != nil {
		return dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "updating document status", dserr.FieldDocumentID(documentID))
	}

	if err := tx.Commit(); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "committing document status: %w", err)
	}
	return nil
}

func (s *documentStore) RefreshCounters(ctx context.Context, documentID string) error {
	const q = `UPDATE documents SET
	total_chunks = (SELECT COUNT(*) FROM chunks
		WHERE document_id = ? AND is_active = 1 AND invalidated_by IS NULL),
	total_tokens = (SELECT COALESCE(SUM(token_count), 0) FROM chunks
		WHERE document_id = ? AND is_active = 1 AND invalidated_by IS NULL),
	updated_at = ?
WHERE document_id = ?`

	res, err := s.db.ExecContext(ctx, q, documentID, documentID, formatTime(s.now()), documentID)
	if err != nil {
		return dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "refreshing document counters", dserr.FieldDocumentID(documentID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "reading rows affected", dserr.FieldDocumentID(documentID))
	}
	if n == 0 {
		return dserr.Wrap(store.ErrNotFound, dserr.CodeStoreDocumentNotFound, "document not found", dserr.FieldDocumentID(documentID))
	}
	return nil
}

// currentStatus returns the stored status, or "" if the document is absent.
func currentStatus(ctx context.Context, tx *sql.Tx, documentID string) (store.ProcessingStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT processing_status FROM documents WHERE document_id = ?`, documentID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dserr.Wrap(err, dserr.CodeStoreDatabaseFailure, "reading document status", dserr.FieldDocumentID(documentID))
	}
	return store.ProcessingStatus(status), nil
}
