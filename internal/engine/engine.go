// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

// Package engine wires the metadata store, the vector index, and the
// retrieval components into one context that the host opens at start-up
// and closes on shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Recovery reasons reported when Open rebuilt the index.
const (
	RecoveryMissing = "missing"
	RecoveryCorrupt = "corrupt"
	RecoveryDrift   = "drift"
)

// Config holds everything Open needs.
type Config struct {
	Storage      store.StorageConfig
	DatabasePath string
	IndexPath    string

	// IncludeInactive also indexes soft-deleted chunks during rebuilds.
	IncludeInactive bool
	// SkipVerify skips the start-up drift check. A missing or corrupt index
	// is still rebuilt.
	SkipVerify bool

	Retrieval retrieval.Options
	// Embedder is required for Retrieve. Nil installs embedding.Disabled.
	Embedder embedding.Embedder
	Logger   *slog.Logger
}

// Recovery describes an index rebuild performed by Open.
type Recovery struct {
	Reason string
	// QuarantinedPath is where a corrupt index file was moved.
	QuarantinedPath string
	Report          *retrieval.RebuildReport
}

// Engine is the process-wide retrieval context.
type Engine struct {
	Store     store.MetadataStore
	Index     store.VectorIndex
	Embedder  embedding.Embedder
	Retriever *retrieval.Retriever
	Ingestor  *retrieval.Ingestor
	Rebuilder *retrieval.Rebuilder

	cfg      Config
	log      *slog.Logger
	recovery *Recovery
}

// Open opens the store and the index. A missing index is rebuilt when the
// store holds embeddings, a corrupt one is quarantined and rebuilt, and an
// index lacking stored vectors is rebuilt. A corrupt index with no stored
// embeddings to rebuild from is fatal.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embedding.NewDisabled(cfg.Storage.Dimensions())
	}
	if cfg.Embedder.Dimension() != cfg.Storage.Dimensions() {
		return nil, dserr.Errorf(dserr.CodeVectorDimensionMismatch,
			"embedder %s produces %d dimensions, index is configured for %d",
			cfg.Embedder.Name(), cfg.Embedder.Dimension(), cfg.Storage.Dimensions())
	}

	ms, err := store.NewMetadataStore(&cfg.Storage, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	e := &Engine{Store: ms, Embedder: cfg.Embedder, cfg: cfg, log: log}
	if err := e.openIndex(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.wire(); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.recover(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// openIndex loads the persisted index, moving a corrupt file aside so an
// empty index can take its place.
func (e *Engine) openIndex(ctx context.Context) error {
	missing := false
	if _, err := os.Stat(e.cfg.IndexPath); errors.Is(err, os.ErrNotExist) {
		missing = true
	}

	idx, err := store.LoadVectorIndex(ctx, &e.cfg.Storage, e.cfg.IndexPath)
	if dserr.IsCorruptIndex(err) {
		quarantine := fmt.Sprintf("%s.corrupt-%d", e.cfg.IndexPath, time.Now().Unix())
		e.log.WarnContext(ctx, "vector index is corrupt; moving it aside",
			slog.String("path", e.cfg.IndexPath),
			slog.String("quarantine", quarantine),
			slog.Any("error", err),
		)
		if renameErr := os.Rename(e.cfg.IndexPath, quarantine); renameErr != nil {
			return dserr.Errorf(dserr.CodeVectorIndexIOFailure, "quarantining corrupt index: %w", renameErr)
		}
		e.recovery = &Recovery{Reason: RecoveryCorrupt, QuarantinedPath: quarantine}
		idx, err = store.LoadVectorIndex(ctx, &e.cfg.Storage, e.cfg.IndexPath)
	}
	if err != nil {
		return err
	}
	e.Index = idx
	if missing && e.recovery == nil {
		e.recovery = &Recovery{Reason: RecoveryMissing}
	}
	return nil
}

func (e *Engine) wire() error {
	var err error
	e.Retriever, err = retrieval.NewRetriever(retrieval.Config{
		Store:    e.Store,
		Index:    e.Index,
		Embedder: e.Embedder,
		Options:  e.cfg.Retrieval,
		Logger:   e.log,
	})
	if err != nil {
		return err
	}
	e.Ingestor, err = retrieval.NewIngestor(retrieval.IngestorConfig{
		Store:     e.Store,
		Index:     e.Index,
		IndexPath: e.cfg.IndexPath,
		Logger:    e.log,
	})
	if err != nil {
		return err
	}
	e.Rebuilder, err = retrieval.NewRebuilder(retrieval.RebuilderConfig{
		Store:           e.Store,
		Index:           e.Index,
		IndexPath:       e.cfg.IndexPath,
		IncludeInactive: e.cfg.IncludeInactive,
		Logger:          e.log,
	})
	return err
}

// recover rebuilds the index when openIndex flagged it or when it lacks
// vectors the store holds.
func (e *Engine) recover(ctx context.Context) error {
	embedded, err := e.Store.Chunks().CountEmbedded(ctx, e.cfg.IncludeInactive)
	if err != nil {
		return err
	}

	switch {
	case e.recovery != nil && e.recovery.Reason == RecoveryCorrupt && embedded == 0:
		return dserr.Errorf(dserr.CodeVectorIndexCorrupt,
			"vector index %s is corrupt and the store holds no embeddings to rebuild it from", e.cfg.IndexPath)
	case e.recovery != nil && e.recovery.Reason == RecoveryMissing && embedded == 0:
		// Fresh installation.
		e.recovery = nil
		return nil
	case e.recovery == nil && !e.cfg.SkipVerify:
		verify, err := e.Rebuilder.Verify(ctx)
		if err != nil {
			return err
		}
		if len(verify.Stale) > 0 {
			e.log.InfoContext(ctx, "index holds vectors of invisible chunks",
				slog.Int("stale", len(verify.Stale)))
		}
		if len(verify.Missing) == 0 {
			return nil
		}
		e.log.WarnContext(ctx, "index is missing stored vectors",
			slog.Int("missing", len(verify.Missing)),
			slog.Int("indexed", verify.Indexed),
			slog.Int("expected", verify.Expected),
		)
		e.recovery = &Recovery{Reason: RecoveryDrift}
	case e.recovery == nil:
		return nil
	}

	e.log.InfoContext(ctx, "rebuilding vector index", slog.String("reason", e.recovery.Reason))
	report, err := e.Rebuilder.Rebuild(ctx)
	if err != nil {
		return err
	}
	e.recovery.Report = report
	return nil
}

// Recovery returns the rebuild Open performed, or nil.
func (e *Engine) Recovery() *Recovery { return e.recovery }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() Config { return e.cfg }

// Close releases the index and the store.
func (e *Engine) Close() error {
	var errs []error
	if e.Index != nil {
		errs = append(errs, e.Index.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	return dserr.Join(errs...)
}
