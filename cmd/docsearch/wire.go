// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	googleemb "github.com/ngoquytuan/chatbotdangcap/internal/embedding/google"
	openaiemb "github.com/ngoquytuan/chatbotdangcap/internal/embedding/openai"
	"github.com/ngoquytuan/chatbotdangcap/internal/engine"
	"github.com/ngoquytuan/chatbotdangcap/internal/secrets"
	_ "github.com/ngoquytuan/chatbotdangcap/internal/store/sqlite" // register sqlite backend
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// embedderFactory builds the query embedder. Tests replace it with a stub.
var embedderFactory = newEmbedder

// loadConfig resolves keyring references in the global Viper and returns
// the validated configuration.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case embedding.ProviderOpenAI:
		return openaiemb.New(cfg.EmbedderConfig())
	case embedding.ProviderGoogle:
		return googleemb.New(cfg.EmbedderConfig())
	case embedding.ProviderNone, "":
		return embedding.NewDisabled(cfg.Index.Dimension), nil
	default:
		return nil, dserr.Errorf(dserr.CodeEmbeddingConfigInvalid, "unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

type openOptions struct {
	// withEmbedder builds the configured provider. Commands that never embed
	// a query leave it off so they work without credentials.
	withEmbedder bool
	skipVerify   bool
}

// openEngine creates the data directories and opens the retrieval engine.
func openEngine(ctx context.Context, cfg *config.Config, opts openOptions) (*engine.Engine, error) {
	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Index.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, dserr.Errorf(dserr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	var emb embedding.Embedder
	if opts.withEmbedder {
		var err error
		if emb, err = embedderFactory(cfg); err != nil {
			return nil, err
		}
	}

	e, err := engine.Open(ctx, engine.Config{
		Storage:         cfg.StoreConfig(),
		DatabasePath:    cfg.Storage.DatabasePath,
		IndexPath:       cfg.Index.Path,
		IncludeInactive: cfg.Index.IncludeInactive,
		SkipVerify:      cfg.Index.SkipVerify || opts.skipVerify,
		Retrieval:       cfg.RetrievalOptions(),
		Embedder:        emb,
		Logger:          slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	if r := e.Recovery(); r != nil && r.Report != nil {
		slog.Info("vector index recovered",
			slog.String("reason", r.Reason),
			slog.Int("rebuilt", r.Report.Rebuilt),
			slog.Int("skipped", r.Report.Skipped()),
		)
	}
	return e, nil
}

// withEngine loads the config, opens the engine, and closes it after fn.
func withEngine(ctx context.Context, opts openOptions, fn func(*config.Config, *engine.Engine) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cfg, e)
}
