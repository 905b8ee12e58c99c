// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// auditStore reads audit_log. Entries are only ever written by appendAudit
// inside the transaction of the mutation they record.
type auditStore struct {
	db *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendAudit(ctx context.Context, ex execer, entry *store.AuditEntry, oldValues, newValues string) error {
	const q = `INSERT INTO audit_log (table_name, record_id, action, old_values, new_values, user_id, reason, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := ex.ExecContext(ctx, q,
		entry.TableName, entry.RecordID, entry.Action, oldValues, newValues,
		entry.UserID, entry.Reason, formatTime(entry.Timestamp),
	); err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "appending audit entry: %w", err)
	}
	return nil
}

func (s *auditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, table_name, record_id, action, old_values, new_values, user_id, reason, timestamp FROM audit_log`)

	var conditions []string
	var args []any

	if filter.TableName != "" {
		conditions = append(conditions, "table_name = ?")
		args = append(args, filter.TableName)
	}
	if filter.RecordID != 0 {
		conditions = append(conditions, "record_id = ?")
		args = append(args, filter.RecordID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY id ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "querying audit log: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var ts, oldJSON, newJSON string
		if err := rows.Scan(
			&e.ID, &e.TableName, &e.RecordID, &e.Action, &oldJSON, &newJSON,
			&e.UserID, &e.Reason, &ts,
		); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning audit row: %w", err)
		}
		e.Timestamp = parseTime(ts)
		if err := unmarshalValues(oldJSON, &e.OldValues); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "decoding audit entry %d old values: %w", e.ID, err)
		}
		if err := unmarshalValues(newJSON, &e.NewValues); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "decoding audit entry %d new values: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "iterating audit entries: %w", err)
	}
	return entries, nil
}

func unmarshalValues(raw string, dst *map[string]any) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
