// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"slices"
	"strings"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
)

// ChunkFilter builds a parameterized WHERE clause over the chunks table.
// Every filter starts with the visibility predicate; caller values only
// ever reach the database as bound arguments.
type ChunkFilter struct {
	conditions []string
	args       []any
}

// NewChunkFilter returns a filter admitting only active, non-invalidated chunks.
func NewChunkFilter() *ChunkFilter {
	return &ChunkFilter{
		conditions: []string{"is_active = 1", "invalidated_by IS NULL"},
	}
}

// IDs restricts to the given store ids. An empty list adds no restriction.
func (f *ChunkFilter) IDs(ids []int64) *ChunkFilter {
	if len(ids) == 0 {
		return f
	}
	f.conditions = append(f.conditions, "id IN ("+placeholders(len(ids))+")")
	for _, id := range ids {
		f.args = append(f.args, id)
	}
	return f
}

// DocumentIDs restricts to chunks of the given documents.
func (f *ChunkFilter) DocumentIDs(ids []string) *ChunkFilter {
	return f.in("document_id", ids)
}

// Categories restricts to chunks in the given categories.
func (f *ChunkFilter) Categories(categories []string) *ChunkFilter {
	return f.in("category", categories)
}

// Languages restricts to chunks in the given languages.
func (f *ChunkFilter) Languages(languages []string) *ChunkFilter {
	return f.in("language", languages)
}

// Text adds a substring match over text, title, and heading. Matching is
// case-insensitive for ASCII only, as with SQLite LIKE.
func (f *ChunkFilter) Text(q string) *ChunkFilter {
	q = strings.TrimSpace(q)
	if q == "" {
		return f
	}
	pattern := "%" + escapeLike(q) + "%"
	f.conditions = append(f.conditions,
		`(text LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR heading LIKE ? ESCAPE '\')`)
	f.args = append(f.args, pattern, pattern, pattern)
	return f
}

// Roles admits chunks whose access roles contain "all" or intersect roles.
// No roles, or a role set that itself contains "all", adds no restriction.
func (f *ChunkFilter) Roles(roles []string) *ChunkFilter {
	if len(roles) == 0 || slices.Contains(roles, store.RoleAll) {
		return f
	}
	f.conditions = append(f.conditions,
		"EXISTS (SELECT 1 FROM json_each(chunks.access_roles) WHERE json_each.value IN ("+placeholders(len(roles)+1)+"))")
	f.args = append(f.args, store.RoleAll)
	for _, r := range roles {
		f.args = append(f.args, r)
	}
	return f
}

// UpdatedBetween restricts updated_at to [from, to]. Zero bounds are open.
func (f *ChunkFilter) UpdatedBetween(from, to time.Time) *ChunkFilter {
	if !from.IsZero() {
		f.conditions = append(f.conditions, "updated_at >= ?")
		f.args = append(f.args, formatTime(from))
	}
	if !to.IsZero() {
		f.conditions = append(f.conditions, "updated_at <= ?")
		f.args = append(f.args, formatTime(to))
	}
	return f
}

// Build returns the WHERE clause (without the keyword) and its arguments.
func (f *ChunkFilter) Build() (string, []any) {
	args := make([]any, len(f.args))
	copy(args, f.args)
	return strings.Join(f.conditions, " AND "), args
}

func (f *ChunkFilter) in(column string, values []string) *ChunkFilter {
	if len(values) == 0 {
		return f
	}
	f.conditions = append(f.conditions, column+" IN ("+placeholders(len(values))+")")
	for _, v := range values {
		f.args = append(f.args, v)
	}
	return f
}

// BuildChunkQuery renders q into a complete SELECT over chunkColumns.
func BuildChunkQuery(q store.ChunkQuery) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	where, args := NewChunkFilter().
		IDs(q.IDs).
		DocumentIDs(q.DocumentIDs).
		Categories(q.Categories).
		Languages(q.Languages).
		Text(q.TextSearch).
		Roles(q.UserRoles).
		UpdatedBetween(q.UpdatedFrom, q.UpdatedTo).
		Build()

	order := q.OrderBy
	desc := q.OrderDesc
	if order == "" {
		order, desc = store.OrderByUpdatedAt, true
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultChunkLimit
	}

	var qb strings.Builder
	qb.WriteString("SELECT ")
	qb.WriteString(chunkColumns)
	qb.WriteString(" FROM chunks WHERE ")
	qb.WriteString(where)
	// order is whitelisted by Validate.
	qb.WriteString(" ORDER BY " + string(order) + " " + dir + ", id " + dir)
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	return qb.String(), args, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
