// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

//go:build !windows

package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

const (
	groupRead  fs.FileMode = 0o040
	otherRead  fs.FileMode = 0o004
	otherWrite fs.FileMode = 0o002
)

// dataExtensions are the files under data_dir holding chunk text, the audit
// trail, or vectors.
var dataExtensions = []string{".db", ".db-wal", ".db-shm", ".idx"}

// PermissionIssue is one path whose mode exposes docsearch state to other
// users.
type PermissionIssue struct {
	Path        string
	Mode        fs.FileMode
	Problem     string
	Recommended fs.FileMode
}

// AuditPermissions inspects the config file, the data directory, and the
// database and index files directly inside it. Paths that do not exist are
// skipped.
func AuditPermissions(configPath, dataDir string) []PermissionIssue {
	var issues []PermissionIssue

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.Mode().Perm()&(groupRead|otherRead) != 0 {
			issues = append(issues, PermissionIssue{
				Path:        configPath,
				Mode:        info.Mode(),
				Problem:     "config file is readable by other users; embedding.api_key may be exposed",
				Recommended: 0o600,
			})
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("could not stat config file for permission check", "path", configPath, "error", err)
		}
	}

	if dataDir == "" {
		return issues
	}
	info, err := os.Stat(dataDir)
	if err != nil {
		return issues
	}
	if info.Mode().Perm()&otherWrite != 0 {
		issues = append(issues, PermissionIssue{
			Path:        dataDir,
			Mode:        info.Mode(),
			Problem:     "data directory is writable by other users; the database and vector index can be replaced",
			Recommended: 0o700,
		})
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return issues
	}
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(dataExtensions, filepath.Ext(e.Name())) {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Mode().Perm()&otherRead == 0 {
			continue
		}
		issues = append(issues, PermissionIssue{
			Path:        filepath.Join(dataDir, e.Name()),
			Mode:        fi.Mode(),
			Problem:     "data file is readable by other users; chunk text and the audit log may be exposed",
			Recommended: 0o600,
		})
	}
	return issues
}

// WarnInsecurePermissions logs every AuditPermissions finding. It never fails
// startup.
func WarnInsecurePermissions(configPath, dataDir string) {
	for _, issue := range AuditPermissions(configPath, dataDir) {
		slog.Warn(issue.Problem,
			"path", issue.Path,
			"mode", issue.Mode,
			"recommended", issue.Recommended,
		)
	}
}
