// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides, e.g. DOCSEARCH_INDEX_PATH.
const EnvPrefix = "DOCSEARCH"

// Config is the top-level docsearch configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Analytics AnalyticsConfig `mapstructure:"analytics" yaml:"analytics"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// StorageConfig selects the metadata backend and its database file.
type StorageConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// IndexConfig controls the persisted vector index.
type IndexConfig struct {
	Path            string `mapstructure:"path" yaml:"path"`
	Dimension       int    `mapstructure:"dimension" yaml:"dimension"`
	IncludeInactive bool   `mapstructure:"include_inactive" yaml:"include_inactive"`
	SkipVerify      bool   `mapstructure:"skip_verify" yaml:"skip_verify"`
}

// RetrievalConfig holds the search defaults.
type RetrievalConfig struct {
	DefaultTopK        int  `mapstructure:"default_top_k" yaml:"default_top_k"`
	MaxTopK            int  `mapstructure:"max_top_k" yaml:"max_top_k"`
	CompensationFactor int  `mapstructure:"compensation_factor" yaml:"compensation_factor"`
	LogAnalytics       bool `mapstructure:"log_analytics" yaml:"log_analytics"`
}

// EmbeddingConfig selects the query embedding provider.
// APIKey may be a keyring:// reference.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
}

// AnalyticsConfig controls search analytics retention.
type AnalyticsConfig struct {
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.dimension", d.Index.Dimension)
	v.SetDefault("index.include_inactive", d.Index.IncludeInactive)
	v.SetDefault("index.skip_verify", d.Index.SkipVerify)
	v.SetDefault("retrieval.default_top_k", d.Retrieval.DefaultTopK)
	v.SetDefault("retrieval.max_top_k", d.Retrieval.MaxTopK)
	v.SetDefault("retrieval.compensation_factor", d.Retrieval.CompensationFactor)
	v.SetDefault("retrieval.log_analytics", d.Retrieval.LogAnalytics)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("analytics.retention_days", d.Analytics.RetentionDays)
	v.SetDefault("logging.level", d.Logging.Level)
}

// SetupEnv binds DOCSEARCH_ environment variables, mapping "." in keys to "_".
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Defaults returns the built-in configuration. Empty paths resolve under
// DataDir.
func Defaults() Config {
	return Config{
		DataDir: "data",
		Storage: StorageConfig{Backend: "sqlite"},
		Index:   IndexConfig{Dimension: store.DefaultVectorDimensions},
		Retrieval: RetrievalConfig{
			DefaultTopK:        retrieval.DefaultTopK,
			MaxTopK:            retrieval.DefaultMaxTopK,
			CompensationFactor: retrieval.DefaultCompensationFactor,
			LogAnalytics:       true,
		},
		Embedding: EmbeddingConfig{Provider: embedding.ProviderNone},
		Analytics: AnalyticsConfig{RetentionDays: 30},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix DOCSEARCH_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, dserr.Errorf(dserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dserr.Errorf(dserr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}
	cfg.resolvePaths()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, dserr.Errorf(dserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.DataDir, "metadata.db")
	}
	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.DataDir, "vectors.idx")
	}
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateMisc()...)
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	if c.Storage.Backend != "sqlite" {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	if c.Storage.DatabasePath == "" {
		errs = append(errs, dserr.New(dserr.CodeConfigValidateInvalidValue,
			"config: storage.database_path must not be empty"))
	}
	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error
	if c.Index.Path == "" {
		errs = append(errs, dserr.New(dserr.CodeConfigValidateInvalidValue,
			"config: index.path must not be empty"))
	}
	if c.Index.Dimension <= 0 {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: index.dimension must be greater than 0, got %d", c.Index.Dimension))
	}
	if c.Index.Path != "" && c.Index.Path == c.Storage.DatabasePath {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: index.path and storage.database_path must differ, both are %q", c.Index.Path))
	}
	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error
	r := c.Retrieval
	if r.MaxTopK <= 0 || r.MaxTopK > store.MaxSearchK {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: retrieval.max_top_k must be in [1, %d], got %d", store.MaxSearchK, r.MaxTopK))
	}
	if r.DefaultTopK <= 0 || (r.MaxTopK > 0 && r.DefaultTopK > r.MaxTopK) {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: retrieval.default_top_k must be in [1, %d], got %d", r.MaxTopK, r.DefaultTopK))
	}
	if r.CompensationFactor < 1 {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: retrieval.compensation_factor must be at least 1, got %d", r.CompensationFactor))
	} else if r.MaxTopK > 0 && r.CompensationFactor > store.MaxSearchK/r.MaxTopK {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: retrieval.compensation_factor times retrieval.max_top_k must not exceed %d, got %d x %d",
			store.MaxSearchK, r.CompensationFactor, r.MaxTopK))
	}
	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	switch c.Embedding.Provider {
	case embedding.ProviderNone:
	case embedding.ProviderOpenAI, embedding.ProviderGoogle:
		if c.Embedding.Model == "" {
			errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
				"config: embedding.model must not be empty for provider %q", c.Embedding.Provider))
		}
	default:
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [none, openai, google], got %q", c.Embedding.Provider))
	}
	return errs
}

func (c *Config) validateMisc() []error {
	var errs []error
	if c.Analytics.RetentionDays <= 0 {
		errs = append(errs, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: analytics.retention_days must be greater than 0, got %d", c.Analytics.RetentionDays))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ParseLevel maps logging.level onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, dserr.Errorf(dserr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q", s)
	}
	return lvl, nil
}

// StoreConfig returns the store factory settings.
func (c *Config) StoreConfig() store.StorageConfig {
	return store.StorageConfig{Backend: c.Storage.Backend, VectorDimensions: c.Index.Dimension}
}

// RetrievalOptions returns the retriever options.
func (c *Config) RetrievalOptions() retrieval.Options {
	return retrieval.Options{
		DefaultTopK:        c.Retrieval.DefaultTopK,
		MaxTopK:            c.Retrieval.MaxTopK,
		CompensationFactor: c.Retrieval.CompensationFactor,
		LogAnalytics:       c.Retrieval.LogAnalytics,
	}
}

// EmbedderConfig returns the provider settings with the configured index
// dimension.
func (c *Config) EmbedderConfig() embedding.Config {
	return embedding.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Index.Dimension,
	}
}
