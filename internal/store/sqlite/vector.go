// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex with a sqlite-vec vec0 table held
// in a private in-memory database. Rows are keyed by rowid, which is always
// the chunk's store id. Persist and LoadVectorIndex move the whole database
// to and from a file with the SQLite backup API.
//
// Searches share a read lock; adds, rebuilds, and persists are exclusive.
type VectorIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	pin    *sql.Conn // keeps the in-memory database alive
	dims   int
	count  int
	closed bool
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(ctx context.Context, dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, dserr.Errorf(dserr.CodeVectorDimensionMismatch, "index dimension must be positive, got %d", dims)
	}

	dsn := "file:vecidx-" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "opening index db: %w", err)
	}

	pin, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "pinning index db: %w", err)
	}

	if err := migrateIndex(ctx, pin, dims); err != nil {
		_ = pin.Close()
		_ = db.Close()
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "creating index tables: %w", err)
	}

	return &VectorIndex{db: db, pin: pin, dims: dims}, nil
}

// LoadVectorIndex reads a persisted index from path. A path that does not
// exist yields an empty index. An unreadable file, or one built for another
// dimension, fails with vector.index.corrupt.
func LoadVectorIndex(ctx context.Context, path string, dims int) (*VectorIndex, error) {
	idx, err := NewVectorIndex(ctx, dims)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return idx, nil
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	} else if err != nil {
		_ = idx.Close()
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "stat index file: %w", err)
	}

	if err := idx.restore(ctx, path); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func migrateIndex(ctx context.Context, conn *sql.Conn, dims int) error {
	const metaDDL = `CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := conn.ExecContext(ctx, metaDDL); err != nil {
		return fmt.Errorf("creating index_meta table: %w", err)
	}

	if _, err := conn.ExecContext(ctx, vectorsDDL(dims)); err != nil {
		return fmt.Errorf("creating vectors virtual table: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO index_meta(key, value) VALUES ('dimension', ?)`, strconv.Itoa(dims),
	); err != nil {
		return fmt.Errorf("recording index dimension: %w", err)
	}
	return nil
}

func vectorsDDL(dims int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(embedding float[%d])`, dims)
}

func (v *VectorIndex) restore(ctx context.Context, path string) error {
	src, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "opening index file: %w", err)
	}
	defer func() { _ = src.Close() }()

	srcConn, err := src.Conn(ctx)
	if err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt, "reading index file %s: %w", path, err)
	}
	defer func() { _ = srcConn.Close() }()

	if err := backupConn(ctx, v.pin, srcConn); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt, "reading index file %s: %w", path, err)
	}

	var raw string
	if err := v.pin.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&raw); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt, "index file %s has no dimension: %w", path, err)
	}
	dims, err := strconv.Atoi(raw)
	if err != nil || dims != v.dims {
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt,
			"index file %s has dimension %q, expected %d", path, raw, v.dims)
	}

	var n int
	if err := v.pin.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt, "counting vectors in %s: %w", path, err)
	}
	v.count = n
	return nil
}

// Dimension returns the vector dimension the index accepts.
func (v *VectorIndex) Dimension() int { return v.dims }

// Len returns the number of indexed vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

func (v *VectorIndex) AddWithIDs(ctx context.Context, ids []int64, vectors [][]float32) error {
	if err := v.checkBatch(ids, vectors); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return dserr.New(dserr.CodeVectorIndexClosed, "index is closed")
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM vectors WHERE rowid = ?`, id).Scan(&exists)
		if err == nil {
			return dserr.New(dserr.CodeVectorIDInvalid, "id already indexed", dserr.FieldVectorID(id))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "checking id %d: %w", id, err)
		}
	}

	if err := insertVectors(ctx, tx, ids, vectors); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "committing vectors: %w", err)
	}
	v.count += len(ids)
	return nil
}

// checkBatch validates a whole batch before anything is written.
func (v *VectorIndex) checkBatch(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return dserr.Errorf(dserr.CodeVectorIDInvalid, "got %d ids for %d vectors", len(ids), len(vectors))
	}
	seen := make(map[int64]struct{}, len(ids))
	for i, id := range ids {
		if id <= 0 {
			return dserr.New(dserr.CodeVectorIDInvalid, "ids must be positive", dserr.FieldVectorID(id))
		}
		if _, dup := seen[id]; dup {
			return dserr.New(dserr.CodeVectorIDInvalid, "duplicate id in batch", dserr.FieldVectorID(id))
		}
		seen[id] = struct{}{}
		if err := store.CheckVector(vectors[i], v.dims); err != nil {
			return dserr.With(err, dserr.FieldVectorID(id))
		}
	}
	return nil
}

func insertVectors(ctx context.Context, tx *sql.Tx, ids []int64, vectors [][]float32) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(rowid, embedding) VALUES (?, ?)`)
	if err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range ids {
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "serializing vector %d: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, blob); err != nil {
			return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "inserting vector %d: %w", id, err)
		}
	}
	return nil
}

// Search returns the k nearest ids by cosine similarity. Distances from vec0
// are L2; for unit vectors similarity = 1 - d^2/2.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]int64, []float32, error) {
	if k <= 0 || k > store.MaxSearchK {
		return nil, nil, dserr.Errorf(dserr.CodeVectorQueryInvalid, "k must be in [1, %d], got %d", store.MaxSearchK, k)
	}
	if err := store.CheckVector(query, v.dims); err != nil {
		return nil, nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, nil, dserr.New(dserr.CodeVectorIndexClosed, "index is closed")
	}
	if v.count == 0 {
		return nil, nil, dserr.New(dserr.CodeVectorIndexEmpty, "index has no vectors")
	}

	limit := min(k, v.count)

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, nil, dserr.Errorf(dserr.CodeVectorQueryInvalid, "serializing query vector: %w", err)
	}

	const q = `SELECT rowid, distance FROM vectors
WHERE embedding MATCH ? AND k = ?
ORDER BY distance`

	rows, err := v.db.QueryContext(ctx, q, blob, limit)
	if err != nil {
		return nil, nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "searching vectors: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	ids := make([]int64, 0, k)
	scores := make([]float32, 0, k)
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "scanning search result: %w", err)
		}
		ids = append(ids, id)
		scores = append(scores, float32(1-distance*distance/2))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "iterating search results: %w", err)
	}

	for len(ids) < k {
		ids = append(ids, store.NoResult)
		scores = append(scores, float32(math.Inf(-1)))
	}
	return ids, scores, nil
}

func (v *VectorIndex) IDs(ctx context.Context) ([]int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, dserr.New(dserr.CodeVectorIndexClosed, "index is closed")
	}

	rows, err := v.db.QueryContext(ctx, `SELECT rowid FROM vectors ORDER BY rowid`)
	if err != nil {
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "listing ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	ids := make([]int64, 0, v.count)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dserr.Errorf(dserr.CodeVectorIndexIOFailure, "iterating ids: %w", err)
	}
	return ids, nil
}

// Rebuild drops and recreates the vectors table inside one transaction,
// then lets fill add the new contents. The previous contents survive a
// failed fill.
func (v *VectorIndex) Rebuild(ctx context.Context, fill func(add func(ids []int64, vectors [][]float32) error) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return dserr.New(dserr.CodeVectorIndexClosed, "index is closed")
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "beginning rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS vectors`); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "dropping vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, vectorsDDL(v.dims)); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "recreating vectors: %w", err)
	}

	count := 0
	seen := make(map[int64]struct{})
	add := func(ids []int64, vectors [][]float32) error {
		if err := v.checkBatch(ids, vectors); err != nil {
			return err
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				return dserr.New(dserr.CodeVectorIDInvalid, "id already indexed", dserr.FieldVectorID(id))
			}
		}
		if err := insertVectors(ctx, tx, ids, vectors); err != nil {
			return err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
		count += len(ids)
		return nil
	}

	if err := fill(add); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "committing rebuild: %w", err)
	}
	v.count = count
	return nil
}

// Persist writes the index to a temporary file next to path, syncs it, and
// renames it into place.
func (v *VectorIndex) Persist(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return dserr.New(dserr.CodeVectorIndexClosed, "index is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "creating index directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.NewString())
	if err := backupToFile(ctx, v.pin, tmp); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "writing index snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "renaming index snapshot: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "syncing index directory: %w", err)
	}
	return nil
}

// Close releases the in-memory database. The index is unusable afterwards.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	var errs []error
	if err := v.pin.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := v.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
