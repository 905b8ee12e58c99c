// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

//go:build windows

package config

import (
	"io/fs"
	"log/slog"
)

// PermissionIssue is one path whose mode exposes docsearch state to other
// users.
type PermissionIssue struct {
	Path        string
	Mode        fs.FileMode
	Problem     string
	Recommended fs.FileMode
}

// AuditPermissions reports nothing on Windows, where access is governed by
// ACLs rather than mode bits.
func AuditPermissions(string, string) []PermissionIssue { return nil }

// WarnInsecurePermissions is a no-op on Windows.
func WarnInsecurePermissions(configPath, dataDir string) {
	slog.Debug("permission audit not implemented on Windows", "config", configPath, "data_dir", dataDir)
}
