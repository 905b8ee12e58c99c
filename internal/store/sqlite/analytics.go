// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

type analyticsStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *analyticsStore) LogSearch(ctx context.Context, entry *store.SearchLog) (int64, error) {
	ids := entry.TopChunkIDs
	if ids == nil {
		ids = []int64{}
	}
	top, err := json.Marshal(ids)
	if err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "encoding top chunk ids: %w", err)
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	const q = `INSERT INTO search_analytics (query_text, results_count, top_chunk_ids, search_time_ms, user_id, session_id, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		entry.QueryText, entry.ResultsCount, string(top), entry.SearchTimeMS,
		entry.UserID, entry.SessionID, formatTime(ts),
	)
	if err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "logging search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "reading search log id: %w", err)
	}
	return id, nil
}

func (s *analyticsStore) RecordFeedback(ctx context.Context, searchID int64, score int) error {
	if score < 1 || score > 5 {
		return dserr.Errorf(dserr.CodeStoreInvalidInput, "feedback score must be in [1, 5], got %d", score)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE search_analytics SET feedback_score = ? WHERE id = ?`, score, searchID)
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "recording feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dserr.Errorf(dserr.CodeStoreDatabaseFailure, "reading rows affected: %w", err)
	}
	if n == 0 {
		return dserr.Wrap(store.ErrNotFound, dserr.CodeStoreSearchLogNotFound, "search log not found", dserr.Field("search_id", searchID))
	}
	return nil
}

func (s *analyticsStore) Recent(ctx context.Context, limit int) ([]*store.SearchLog, error) {
	if limit <= 0 {
		limit = defaultAnalyticsLimit
	}

	const q = `SELECT id, query_text, results_count, top_chunk_ids, search_time_ms, user_id, session_id, timestamp, feedback_score
FROM search_analytics ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "querying search logs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var logs []*store.SearchLog
	for rows.Next() {
		var (
			l        store.SearchLog
			top, ts  string
			feedback sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.QueryText, &l.ResultsCount, &top, &l.SearchTimeMS,
			&l.UserID, &l.SessionID, &ts, &feedback); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "scanning search log: %w", err)
		}
		if err := decodeJSONColumn(top, &l.TopChunkIDs); err != nil {
			return nil, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "decoding top chunk ids: %w", err)
		}
		l.Timestamp = parseTime(ts)
		if feedback.Valid {
			score := int(feedback.Int64)
			l.FeedbackScore = &score
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (s *analyticsStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_analytics WHERE timestamp < ?`, formatTime(olderThan))
	if err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "cleaning search logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dserr.Errorf(dserr.CodeStoreDatabaseFailure, "reading rows affected: %w", err)
	}
	return n, nil
}
