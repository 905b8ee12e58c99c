// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store_test

import (
	"testing"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingStatusValues(t *testing.T) {
	assert.Equal(t, store.ProcessingStatus("pending"), store.StatusPending)
	assert.Equal(t, store.ProcessingStatus("processing"), store.StatusProcessing)
	assert.Equal(t, store.ProcessingStatus("completed"), store.StatusCompleted)
	assert.Equal(t, store.ProcessingStatus("failed"), store.StatusFailed)
	assert.False(t, store.ProcessingStatus("archived").Valid())
}

func TestProcessingStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to store.ProcessingStatus
		want     bool
	}{
		{"", store.StatusPending, true},
		{"", store.StatusProcessing, true},
		{store.StatusPending, store.StatusProcessing, true},
		{store.StatusPending, store.StatusCompleted, false},
		{store.StatusProcessing, store.StatusCompleted, true},
		{store.StatusProcessing, store.StatusFailed, true},
		{store.StatusProcessing, store.StatusPending, false},
		{store.StatusCompleted, store.StatusProcessing, true},
		{store.StatusCompleted, store.StatusFailed, false},
		{store.StatusFailed, store.StatusProcessing, true},
		{store.StatusCompleted, store.StatusCompleted, true},
		{store.StatusPending, "bogus", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestChunkValidate(t *testing.T) {
	valid := func() *store.Chunk {
		return &store.Chunk{ChunkID: "doc_c1", DocumentID: "doc", Text: "hello"}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *store.Chunk)
	}{
		{"missing chunk id", func(c *store.Chunk) { c.ChunkID = "  " }},
		{"missing document id", func(c *store.Chunk) { c.DocumentID = "" }},
		{"missing text", func(c *store.Chunk) { c.Text = "" }},
		{"negative tokens", func(c *store.Chunk) { c.TokenCount = -1 }},
		{"pages reversed", func(c *store.Chunk) { c.StartPage, c.EndPage = 5, 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, dserr.HasCode(err, dserr.CodeStoreChunkInsertInvalid))
		})
	}

	var nilChunk *store.Chunk
	assert.Error(t, nilChunk.Validate())
}

func TestChunkApplyDefaults(t *testing.T) {
	c := &store.Chunk{ChunkID: "d_c1", DocumentID: "d", Text: "t", StartPage: 3}
	c.ApplyDefaults()

	assert.Equal(t, "d", c.Title)
	assert.Equal(t, store.DefaultVersion, c.Version)
	assert.Equal(t, store.DefaultLanguage, c.Language)
	assert.Equal(t, []string{store.RoleAll}, c.AccessRoles)
	assert.Equal(t, store.DefaultCategory, c.Category)
	assert.Equal(t, 1, c.HeadingLevel)
	assert.Equal(t, 3, c.EndPage)
}

func TestChunkVisible(t *testing.T) {
	assert.True(t, (&store.Chunk{IsActive: true}).Visible())
	assert.False(t, (&store.Chunk{IsActive: false}).Visible())
	assert.False(t, (&store.Chunk{IsActive: true, InvalidatedBy: "v2"}).Visible())
}

func TestDocumentValidate(t *testing.T) {
	doc := &store.Document{DocumentID: "d", Title: "T", Source: "s.pdf"}
	require.NoError(t, doc.Validate())

	doc.Status = "weird"
	assert.True(t, dserr.HasCode(doc.Validate(), dserr.CodeStoreDocumentUpsertInvalid))

	assert.Error(t, (&store.Document{Title: "T", Source: "s"}).Validate())
	assert.Error(t, (&store.Document{DocumentID: "d", Source: "s"}).Validate())
}

func TestChunkQueryValidate(t *testing.T) {
	require.NoError(t, store.ChunkQuery{}.Validate())
	require.NoError(t, store.ChunkQuery{OrderBy: store.OrderByTitle}.Validate())

	err := store.ChunkQuery{OrderBy: "text; DROP TABLE chunks"}.Validate()
	assert.True(t, dserr.HasCode(err, dserr.CodeStoreFilterInvalid))

	assert.Error(t, store.ChunkQuery{Limit: -1}.Validate())

	now := time.Now()
	assert.Error(t, store.ChunkQuery{UpdatedFrom: now, UpdatedTo: now.Add(-time.Hour)}.Validate())
}

func TestDatabaseStatsSizeMB(t *testing.T) {
	s := store.DatabaseStats{SizeBytes: 3 * 1024 * 1024}
	assert.InDelta(t, 3.0, s.SizeMB(), 1e-9)
}

func TestConsistencyReportClean(t *testing.T) {
	assert.True(t, store.ConsistencyReport{}.Clean())
	assert.False(t, store.ConsistencyReport{InvalidEmbeddings: 1}.Clean())
}
