// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

// Embedder implements embedding.Embedder using the OpenAI Embeddings API or
// any server speaking the same protocol.
type Embedder struct {
	client openaisdk.Client
	config embedding.Config
	health *embedding.HealthTracker
}

var _ embedding.Embedder = (*Embedder)(nil)

// New creates an OpenAI embedder. Returns an error if the API key, model, or
// dimension is missing.
func New(cfg embedding.Config) (*Embedder, error) {
	cfg.Provider = embedding.ProviderOpenAI
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := embedding.NewHealthTracker(embedding.DefaultHealthCooldown)
	if err != nil {
		return nil, dserr.Wrapf(err, dserr.CodeEmbeddingConfigInvalid, "openai: creating health tracker")
	}

	return &Embedder{
		client: openaisdk.NewClient(opts...),
		config: cfg,
		health: tracker,
	}, nil
}

func (e *Embedder) Name() string { return embedding.ProviderOpenAI }

func (e *Embedder) Dimension() int { return e.config.Dimension }

func (e *Embedder) Available(_ context.Context) bool {
	return e.health.IsHealthy()
}

func (e *Embedder) HealthMetrics() health.Metrics {
	return e.health.Metrics()
}

// Embed requests a single embedding for text and returns it unit-normalized.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.health.Guard(e.Name(), func() ([]float32, error) {
		resp, err := e.client.Embeddings.New(ctx, buildParams(e.config, text))
		if err != nil {
			return nil, dserr.Wrapf(err, dserr.CodeEmbeddingUpstreamFailure, "openai: embeddings request")
		}
		if len(resp.Data) == 0 {
			return nil, dserr.New(dserr.CodeEmbeddingResponseInvalid, "openai: response has no data")
		}
		return embedding.Finalize(embedding.FromFloat64(resp.Data[0].Embedding), e.config.Dimension)
	})
}

func buildParams(cfg embedding.Config, text string) openaisdk.EmbeddingNewParams {
	return openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
		Model:      openaisdk.EmbeddingModel(cfg.Model),
		Dimensions: openaisdk.Int(int64(cfg.Dimension)),
	}
}
