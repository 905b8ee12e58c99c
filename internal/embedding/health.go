// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package embedding

import (
	"sync"
	"time"

	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

// HealthTracker provides simple health state tracking for embedding
// providers. A provider is considered healthy until RecordFailure is called.
// After a failure it is marked unhealthy for a cooldown period, after which
// it becomes available again to allow recovery.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// DefaultHealthCooldown is the duration after which an unhealthy provider
// becomes eligible for retry.
const DefaultHealthCooldown = 30 * time.Second

// NewHealthTracker creates a HealthTracker that starts healthy.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// The caller MUST hold at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy returns true if the provider is healthy or the cooldown has elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the provider as unhealthy and increments the
// cumulative failure count.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{FailureCount: h.failureCount}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	m.Available = h.isHealthyLocked()
	if !h.healthy {
		end := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &end
	}
	return m
}

// Guard runs call unless the provider is cooling down, and records the outcome.
func (h *HealthTracker) Guard(provider string, call func() ([]float32, error)) ([]float32, error) {
	if !h.IsHealthy() {
		return nil, dserr.Errorf(dserr.CodeEmbeddingUpstreamFailure,
			"%s: provider unavailable after recent failure", provider)
	}
	v, err := call()
	if err != nil {
		if dserr.IsUpstreamFailure(err) {
			h.RecordFailure()
		}
		return nil, err
	}
	h.RecordSuccess()
	return v, nil
}
