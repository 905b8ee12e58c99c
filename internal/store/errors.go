// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package store

import "errors"

// Sentinel errors for store operations. Store implementations wrap these in
// coded errors so callers can use either errors.Is or the error code.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a document status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)
