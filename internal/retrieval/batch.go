// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// IngestBatch is one document produced by the chunking pipeline, in the JSON
// layout that pipeline writes.
type IngestBatch struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Version    string `json:"version,omitempty"`
	Language   string `json:"language,omitempty"`
	Author     string `json:"author,omitempty"`
	Category   string `json:"category,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	FileHash   string `json:"file_hash,omitempty"`

	ModelName    string `json:"model_name,omitempty"`
	EmbeddingDim int    `json:"embedding_dim,omitempty"`

	Chunks []IngestChunk `json:"chunks"`
}

// IngestChunk is one chunk of an IngestBatch. Empty descriptive fields
// inherit the document's values.
type IngestChunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id,omitempty"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count,omitempty"`

	Heading           string `json:"heading,omitempty"`
	HeadingLevel      int    `json:"heading_level,omitempty"`
	SectionIndex      int    `json:"section_index,omitempty"`
	SectionChunkIndex int    `json:"section_chunk_index,omitempty"`
	StartPage         int    `json:"start_page,omitempty"`
	EndPage           int    `json:"end_page,omitempty"`

	AccessRoles          []string       `json:"access_roles,omitempty"`
	ConfidentialityLevel string         `json:"confidentiality_level,omitempty"`
	Author               string         `json:"author,omitempty"`
	Category             string         `json:"category,omitempty"`
	Keywords             []string       `json:"keywords,omitempty"`
	Summary              string         `json:"summary,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// DecodeBatch reads one IngestBatch from r.
func DecodeBatch(r io.Reader) (*IngestBatch, error) {
	var b IngestBatch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, dserr.Errorf(dserr.CodeRetrievalIngestInvalid, "decoding ingest batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the document-level fields. Chunk-level problems are
// reported per chunk during ingestion.
func (b *IngestBatch) Validate() error {
	if strings.TrimSpace(b.DocumentID) == "" {
		return dserr.New(dserr.CodeRetrievalIngestInvalid, "ingest batch: document_id is required")
	}
	if b.EmbeddingDim < 0 {
		return dserr.New(dserr.CodeRetrievalIngestInvalid, "ingest batch: embedding_dim must be >= 0",
			dserr.FieldDocumentID(b.DocumentID))
	}
	return nil
}

// NormalizeEmbeddings scales every chunk embedding to unit length. Use it for
// producers that do not normalize their output.
func (b *IngestBatch) NormalizeEmbeddings() {
	for i := range b.Chunks {
		store.Normalize(b.Chunks[i].Embedding)
	}
}

func (b *IngestBatch) document() *store.Document {
	title := b.Title
	if title == "" {
		title = b.DocumentID
	}
	source := b.Source
	if source == "" {
		source = b.DocumentID
	}
	return &store.Document{
		DocumentID: b.DocumentID,
		Title:      title,
		Source:     source,
		Version:    b.Version,
		Language:   b.Language,
		Author:     b.Author,
		Category:   b.Category,
		FileSize:   b.FileSize,
		FileHash:   b.FileHash,
	}
}

func (b *IngestBatch) chunk(c IngestChunk) *store.Chunk {
	doc := c.DocumentID
	if doc == "" {
		doc = b.DocumentID
	}
	author := c.Author
	if author == "" {
		author = b.Author
	}
	category := c.Category
	if category == "" {
		category = b.Category
	}
	title := b.Title
	if title == "" {
		title = b.DocumentID
	}
	return &store.Chunk{
		ChunkID:              c.ChunkID,
		DocumentID:           doc,
		Title:                title,
		Source:               b.Source,
		Version:              b.Version,
		Language:             b.Language,
		Text:                 c.Text,
		TokenCount:           c.TokenCount,
		Heading:              c.Heading,
		HeadingLevel:         c.HeadingLevel,
		SectionIndex:         c.SectionIndex,
		SectionChunkIndex:    c.SectionChunkIndex,
		StartPage:            c.StartPage,
		EndPage:              c.EndPage,
		IsActive:             true,
		AccessRoles:          c.AccessRoles,
		ConfidentialityLevel: c.ConfidentialityLevel,
		Author:               author,
		Category:             category,
		Keywords:             c.Keywords,
		Summary:              c.Summary,
		Metadata:             c.Metadata,
		Embedding:            c.Embedding,
	}
}
