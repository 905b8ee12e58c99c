// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"encoding/json"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/config"
	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/secrets"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func TestRootCommand_Help(t *testing.T) {
	out := mustExecute(t, "--help")
	for _, sub := range []string{"ingest", "search", "delete", "rebuild", "health", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustExecute(t, "version")
	assert.Contains(t, out, "docsearch dev")
	assert.Contains(t, out, runtime.Version())

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, "version", "--json")), &info))
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(dserr.New(dserr.CodeCLIInputInvalid, "bad flag")))
	assert.Equal(t, 2, exitCode(dserr.New(dserr.CodeConfigValidateInvalidValue, "bad config")))
	assert.Equal(t, 1, exitCode(dserr.New(dserr.CodeInternalFailure, "boom")))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
}

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.EmbeddingConfig
		wantName string
		wantErr  bool
	}{
		{name: "none", cfg: config.EmbeddingConfig{Provider: embedding.ProviderNone}, wantName: embedding.ProviderNone},
		{name: "openai", cfg: config.EmbeddingConfig{Provider: embedding.ProviderOpenAI, Model: "text-embedding-3-small", APIKey: "sk-test"}, wantName: embedding.ProviderOpenAI},
		{name: "google", cfg: config.EmbeddingConfig{Provider: embedding.ProviderGoogle, Model: "text-embedding-004", APIKey: "g-test"}, wantName: embedding.ProviderGoogle},
		{name: "openai without key", cfg: config.EmbeddingConfig{Provider: embedding.ProviderOpenAI, Model: "m"}, wantErr: true},
		{name: "unknown", cfg: config.EmbeddingConfig{Provider: "cohere"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Embedding = tt.cfg
			emb, err := newEmbedder(&cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dserr.HasCode(err, dserr.CodeEmbeddingConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, emb.Name())
			assert.Equal(t, cfg.Index.Dimension, emb.Dimension())
		})
	}
}

func TestSearch_ResolvesKeyringAPIKey(t *testing.T) {
	testDataDir(t)
	useMockSecrets(t, map[string]string{"openai": "sk-from-keyring"})
	t.Setenv("DOCSEARCH_EMBEDDING_PROVIDER", embedding.ProviderOpenAI)
	t.Setenv("DOCSEARCH_EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("DOCSEARCH_EMBEDDING_API_KEY", secrets.URI("openai"))

	var seen string
	old := embedderFactory
	embedderFactory = func(cfg *config.Config) (embedding.Embedder, error) {
		seen = cfg.Embedding.APIKey
		return &stubEmbedder{vec: axis(0)}, nil
	}
	t.Cleanup(func() { embedderFactory = old })

	mustExecute(t, "search", "q")
	assert.Equal(t, "sk-from-keyring", seen)
}

func TestSearch_UnresolvableKeyringAPIKey(t *testing.T) {
	testDataDir(t)
	useMockSecrets(t, nil)
	t.Setenv("DOCSEARCH_EMBEDDING_PROVIDER", embedding.ProviderOpenAI)
	t.Setenv("DOCSEARCH_EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("DOCSEARCH_EMBEDDING_API_KEY", secrets.URI("missing"))

	_, err := execute(t, "search", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key")
}

func TestDoctor_RunsAllChecks(t *testing.T) {
	testDataDir(t)

	out := mustExecute(t, "doctor")
	for _, check := range []string{"Binary:", "Platform:", "Config:", "Database:", "Vector Index:", "Embedding:", "Disk Space:", "Permissions:"} {
		assert.Contains(t, out, check)
	}
	assert.Contains(t, out, "not created yet")
	assert.Contains(t, out, "no provider configured")
}

func TestDoctor_InvalidConfig(t *testing.T) {
	testDataDir(t)
	t.Setenv("DOCSEARCH_RETRIEVAL_COMPENSATION_FACTOR", "0")

	out := mustExecute(t, "doctor")
	assert.Contains(t, out, "invalid")
	assert.NotContains(t, out, "Disk Space:")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "2.0 KB", formatBytes(2048))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
	assert.Equal(t, "3.0 GB", formatBytes(3*1024*1024*1024))
}
