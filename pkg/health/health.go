// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package health

import "time"

// Metrics exposes the current health state of an upstream dependency, such
// as the embedding service. All fields are point-in-time snapshots safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// Status is the overall verdict of a health check.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// Report exposes a point-in-time health verdict for operator visibility.
// All fields are safe to serialize to JSON.
type Report struct {
	Status    Status    `json:"status"`
	Issues    []string  `json:"issues,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Issue records a problem that degrades the component.
func (r *Report) Issue(msg string) {
	r.Issues = append(r.Issues, msg)
}

// Warn records a condition worth operator attention.
func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Fail marks the report as errored. Used when the component cannot be reached.
func (r *Report) Fail(msg string) {
	r.Issues = append(r.Issues, msg)
	r.Status = StatusError
}

// Finalize derives Status from the recorded issues and warnings unless the
// report was already failed.
func (r *Report) Finalize(now time.Time) {
	r.CheckedAt = now
	if r.Status == StatusError {
		return
	}
	switch {
	case len(r.Issues) > 0:
		r.Status = StatusDegraded
	case len(r.Warnings) > 0:
		r.Status = StatusWarning
	default:
		r.Status = StatusHealthy
	}
}

// OK reports whether the component is usable.
func (r *Report) OK() bool {
	return r.Status == StatusHealthy || r.Status == StatusWarning
}
