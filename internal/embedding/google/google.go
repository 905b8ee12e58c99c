// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

// Query embeddings are requested with the retrieval-query task type so the
// model places them in the same space as retrieval documents.
const taskRetrievalQuery = "RETRIEVAL_QUERY"

// Embedder implements embedding.Embedder using the Gemini API.
type Embedder struct {
	client *genai.Client
	config embedding.Config
	health *embedding.HealthTracker
}

var _ embedding.Embedder = (*Embedder)(nil)

// New creates a Gemini embedder. Returns an error if the API key, model, or
// dimension is missing.
func New(cfg embedding.Config) (*Embedder, error) {
	cfg.Provider = embedding.ProviderGoogle
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, dserr.Wrapf(err, dserr.CodeEmbeddingUpstreamFailure, "google: creating client")
	}

	tracker, err := embedding.NewHealthTracker(embedding.DefaultHealthCooldown)
	if err != nil {
		return nil, dserr.Wrapf(err, dserr.CodeEmbeddingConfigInvalid, "google: creating health tracker")
	}

	return &Embedder{
		client: client,
		config: cfg,
		health: tracker,
	}, nil
}

func (e *Embedder) Name() string { return embedding.ProviderGoogle }

func (e *Embedder) Dimension() int { return e.config.Dimension }

func (e *Embedder) Available(_ context.Context) bool {
	return e.health.IsHealthy()
}

func (e *Embedder) HealthMetrics() health.Metrics {
	return e.health.Metrics()
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.health.Guard(e.Name(), func() ([]float32, error) {
		dim := int32(e.config.Dimension)
		resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, genai.Text(text), &genai.EmbedContentConfig{
			TaskType:             taskRetrievalQuery,
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, dserr.Wrapf(err, dserr.CodeEmbeddingUpstreamFailure, "google: embed content")
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return nil, dserr.New(dserr.CodeEmbeddingResponseInvalid, "google: response has no embeddings")
		}
		return embedding.Finalize(resp.Embeddings[0].Values, e.config.Dimension)
	})
}
