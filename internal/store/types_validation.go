// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import (
	"strings"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Valid reports whether the status is a known lifecycle state.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a document may move from s to next.
// The empty status stands for a document that does not exist yet.
// Re-entering the current state is always allowed.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == "" || s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return next == StatusProcessing
	default:
		return false
	}
}

// Validate checks that the Chunk has all required fields set correctly.
func (c *Chunk) Validate() error {
	if c == nil {
		return dserr.New(dserr.CodeStoreChunkInsertInvalid, "chunk: nil")
	}
	if strings.TrimSpace(c.ChunkID) == "" {
		return dserr.New(dserr.CodeStoreChunkInsertInvalid, "chunk: ChunkID is required")
	}
	if strings.TrimSpace(c.DocumentID) == "" {
		return dserr.New(dserr.CodeStoreChunkInsertInvalid, "chunk: DocumentID is required",
			dserr.FieldChunkID(c.ChunkID))
	}
	if strings.TrimSpace(c.Text) == "" {
		return dserr.New(dserr.CodeStoreChunkInsertInvalid, "chunk: Text is required",
			dserr.FieldChunkID(c.ChunkID))
	}
	if c.TokenCount < 0 {
		return dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "chunk %s: TokenCount must be >= 0, got %d", c.ChunkID, c.TokenCount)
	}
	if c.StartPage > 0 && c.EndPage > 0 && c.EndPage < c.StartPage {
		return dserr.Errorf(dserr.CodeStoreChunkInsertInvalid, "chunk %s: EndPage (%d) before StartPage (%d)", c.ChunkID, c.EndPage, c.StartPage)
	}
	return nil
}

// ApplyDefaults fills empty optional fields with their stored defaults.
func (c *Chunk) ApplyDefaults() {
	if c.Title == "" {
		c.Title = c.DocumentID
	}
	if c.Source == "" {
		c.Source = c.DocumentID
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.HeadingLevel <= 0 {
		c.HeadingLevel = 1
	}
	if c.StartPage <= 0 {
		c.StartPage = 1
	}
	if c.EndPage <= 0 {
		c.EndPage = c.StartPage
	}
	if len(c.AccessRoles) == 0 {
		c.AccessRoles = []string{RoleAll}
	}
	if c.ConfidentialityLevel == "" {
		c.ConfidentialityLevel = DefaultConfidentiality
	}
	if c.Author == "" {
		c.Author = DefaultAuthor
	}
	if c.Category == "" {
		c.Category = DefaultCategory
	}
}

// Validate checks that the Document has all required fields set correctly.
func (d *Document) Validate() error {
	if d == nil {
		return dserr.New(dserr.CodeStoreDocumentUpsertInvalid, "document: nil")
	}
	if strings.TrimSpace(d.DocumentID) == "" {
		return dserr.New(dserr.CodeStoreDocumentUpsertInvalid, "document: DocumentID is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return dserr.New(dserr.CodeStoreDocumentUpsertInvalid, "document: Title is required",
			dserr.FieldDocumentID(d.DocumentID))
	}
	if strings.TrimSpace(d.Source) == "" {
		return dserr.New(dserr.CodeStoreDocumentUpsertInvalid, "document: Source is required",
			dserr.FieldDocumentID(d.DocumentID))
	}
	if d.Status != "" && !d.Status.Valid() {
		return dserr.Errorf(dserr.CodeStoreDocumentUpsertInvalid, "document %s: invalid status %q", d.DocumentID, d.Status)
	}
	if d.FileSize < 0 {
		return dserr.Errorf(dserr.CodeStoreDocumentUpsertInvalid, "document %s: FileSize must be >= 0", d.DocumentID)
	}
	return nil
}

// Valid reports whether col is a whitelisted ORDER BY column.
func (col OrderColumn) Valid() bool {
	switch col {
	case OrderByUpdatedAt, OrderByCreatedAt, OrderByID, OrderByTitle, OrderByTokenCount:
		return true
	default:
		return false
	}
}

// Validate checks the query for values the filter builder cannot express.
func (q ChunkQuery) Validate() error {
	if q.OrderBy != "" && !q.OrderBy.Valid() {
		return dserr.Errorf(dserr.CodeStoreFilterInvalid, "chunk query: unsupported order column %q", q.OrderBy)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return dserr.New(dserr.CodeStoreFilterInvalid, "chunk query: limit and offset must be >= 0")
	}
	if !q.UpdatedFrom.IsZero() && !q.UpdatedTo.IsZero() && q.UpdatedTo.Before(q.UpdatedFrom) {
		return dserr.New(dserr.CodeStoreFilterInvalid, "chunk query: UpdatedTo is before UpdatedFrom")
	}
	return nil
}
