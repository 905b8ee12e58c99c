// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

// Package embedding defines the query-embedding collaborator and the helpers
// shared by its provider adapters.
package embedding

import (
	"context"
	"math"

	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

// Provider names accepted by the embedding.provider setting.
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderNone   = "none"
)

// Embedder turns text into a unit-normalized vector of fixed dimension.
type Embedder interface {
	Name() string
	Dimension() int
	// Available reports whether the upstream service is believed reachable.
	Available(ctx context.Context) bool
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthMetrics() health.Metrics
}

// Config holds the settings common to every provider adapter.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // optional, useful for testing against a mock server
	Dimension int
}

// Validate checks the fields every adapter needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return dserr.Errorf(dserr.CodeEmbeddingConfigInvalid, "%s: missing api_key in config", c.Provider)
	}
	if c.Model == "" {
		return dserr.Errorf(dserr.CodeEmbeddingConfigInvalid, "%s: missing model in config", c.Provider)
	}
	if c.Dimension <= 0 {
		return dserr.Errorf(dserr.CodeEmbeddingConfigInvalid,
			"%s: dimension must be positive, got %d", c.Provider, c.Dimension)
	}
	return nil
}

// Finalize checks a provider response against the expected dimension and
// returns it unit-normalized.
func Finalize(values []float32, dim int) ([]float32, error) {
	if len(values) == 0 {
		return nil, dserr.New(dserr.CodeEmbeddingResponseInvalid, "provider returned an empty embedding")
	}
	if len(values) != dim {
		return nil, dserr.Errorf(dserr.CodeEmbeddingResponseInvalid,
			"provider returned %d dimensions, expected %d", len(values), dim)
	}
	var sum float64
	for _, x := range values {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, dserr.New(dserr.CodeEmbeddingResponseInvalid, "provider returned non-finite values")
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, dserr.New(dserr.CodeEmbeddingResponseInvalid, "provider returned a zero vector")
	}
	return store.Normalize(values), nil
}

// FromFloat64 converts a float64 response into float32 values.
func FromFloat64(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// Disabled is the Embedder used when no provider is configured. Ingest and
// rebuild work without it; every Embed call fails as upstream unavailable.
type Disabled struct {
	dim int
}

var _ Embedder = (*Disabled)(nil)

func NewDisabled(dim int) *Disabled { return &Disabled{dim: dim} }

func (d *Disabled) Name() string { return ProviderNone }
func (d *Disabled) Dimension() int { return d.dim }
func (d *Disabled) Available(context.Context) bool { return false }
func (d *Disabled) HealthMetrics() health.Metrics { return health.Metrics{} }

func (d *Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, dserr.New(dserr.CodeEmbeddingUpstreamFailure,
		"no embedding provider configured; set embedding.provider")
}
