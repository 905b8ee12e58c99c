// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"
)

// backupPagesPerStep bounds how long a single backup step holds the source.
const backupPagesPerStep = 256

// backupConn copies the main database of src into dst using the SQLite
// online backup API.
func backupConn(ctx context.Context, dst, src *sql.Conn) error {
	return dst.Raw(func(dstRaw any) error {
		dstConn, ok := dstRaw.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected destination driver connection %T", dstRaw)
		}
		return src.Raw(func(srcRaw any) error {
			srcConn, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source driver connection %T", srcRaw)
			}

			bk, err := dstConn.Backup("main", srcConn, "main")
			if err != nil {
				return fmt.Errorf("starting backup: %w", err)
			}

			for {
				done, err := bk.Step(backupPagesPerStep)
				if err != nil {
					_ = bk.Finish()
					return fmt.Errorf("backup step: %w", err)
				}
				if done {
					break
				}
				if err := ctx.Err(); err != nil {
					_ = bk.Finish()
					return err
				}
			}
			return bk.Finish()
		})
	})
}

// backupToFile writes the database behind src to a new file at path and
// fsyncs it before returning.
func backupToFile(ctx context.Context, src *sql.Conn, path string) error {
	dstDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening backup target: %w", err)
	}

	dst, err := dstDB.Conn(ctx)
	if err != nil {
		_ = dstDB.Close()
		return fmt.Errorf("connecting to backup target: %w", err)
	}

	copyErr := backupConn(ctx, dst, src)
	_ = dst.Close()
	if err := dstDB.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("closing backup target: %w", err)
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return copyErr
	}

	return syncFile(path)
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s for sync: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}

// syncDir flushes directory metadata so a rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
