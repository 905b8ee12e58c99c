// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ngoquytuan/chatbotdangcap/internal/embedding"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultTopK               = 5
	DefaultMaxTopK            = 20
	DefaultCompensationFactor = 3
)

// analyticsEscalationThreshold is the number of consecutive analytics write
// failures after which they are logged at error level.
const analyticsEscalationThreshold = 3

// State is a step of a single Retrieve call.
type State int

const (
	StateIdle State = iota
	StateEmbedding
	StateVectorSearching
	StateMetadataFiltering
	StateRanking
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmbedding:
		return "embedding"
	case StateVectorSearching:
		return "vector_searching"
	case StateMetadataFiltering:
		return "metadata_filtering"
	case StateRanking:
		return "ranking"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hooks provides optional test hooks observing state transitions.
type Hooks struct {
	OnTransition func(from, to State)
}

// Options tunes the retriever.
type Options struct {
	DefaultTopK        int
	MaxTopK            int
	CompensationFactor int
	// LogAnalytics records every successful retrieve in search_analytics.
	LogAnalytics bool
}

// Config holds dependencies for the Retriever.
type Config struct {
	Store    store.MetadataStore
	Index    store.VectorIndex
	Embedder embedding.Embedder
	Options  Options
	Logger   *slog.Logger
	Hooks    *Hooks
}

// Request is a single retrieval query. Every filter is optional.
type Request struct {
	Query string
	TopK  int

	UserRoles   []string
	DocumentIDs []string
	Categories  []string
	Languages   []string
	// TextQuery additionally requires a substring match over text, title,
	// or heading.
	TextQuery   string
	UpdatedFrom time.Time
	UpdatedTo   time.Time

	// CompensationFactor overrides Options.CompensationFactor when positive.
	CompensationFactor int

	UserID    string
	SessionID string
}

// Result is one ranked chunk.
type Result struct {
	ID         int64          `json:"id"`
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	Heading    string         `json:"heading,omitempty"`
	Text       string         `json:"text"`
	Category   string         `json:"category"`
	Source     string         `json:"source,omitempty"`
	StartPage  int            `json:"start_page,omitempty"`
	EndPage    int            `json:"end_page,omitempty"`
	Score      float32        `json:"similarity_score"`
	Rank       int            `json:"rank"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Response carries the ranked results of one Retrieve call.
type Response struct {
	Results    []Result      `json:"results"`
	Candidates int           `json:"candidates"`
	SearchID   int64         `json:"search_id,omitempty"`
	SessionID  string        `json:"session_id"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Retriever joins vector-search hits back to metadata, filters them, and
// ranks them by similarity.
type Retriever struct {
	store    store.MetadataStore
	index    store.VectorIndex
	embedder embedding.Embedder
	opts     Options
	log      *slog.Logger
	hooks    *Hooks
	now      func() time.Time

	analyticsFailCount atomic.Int64
}

// NewRetriever creates a Retriever with the given dependencies.
func NewRetriever(cfg Config) (*Retriever, error) {
	if cfg.Store == nil || cfg.Index == nil || cfg.Embedder == nil {
		return nil, dserr.New(dserr.CodeRetrievalRequestInvalid, "retriever requires a store, an index, and an embedder")
	}

	opts := cfg.Options
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = DefaultMaxTopK
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	opts.MaxTopK = min(opts.MaxTopK, store.MaxSearchK)
	opts.DefaultTopK = min(opts.DefaultTopK, opts.MaxTopK)
	if opts.CompensationFactor <= 0 {
		opts.CompensationFactor = DefaultCompensationFactor
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Retriever{
		store:    cfg.Store,
		index:    cfg.Index,
		embedder: cfg.Embedder,
		opts:     opts,
		log:      log,
		hooks:    cfg.Hooks,
		now:      time.Now,
	}, nil
}

// run tracks the state of one Retrieve call.
type run struct {
	state State
	hooks *Hooks
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	if r.hooks != nil && r.hooks.OnTransition != nil {
		r.hooks.OnTransition(prev, next)
	}
}

func (r *run) fail(err error) error {
	r.to(StateFailed)
	return err
}

// Retrieve executes EMBEDDING → VECTOR_SEARCHING → METADATA_FILTERING →
// RANKING. An empty index yields an empty result list, not an error.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Response, error) {
	st := &run{state: StateIdle, hooks: r.hooks}
	started := r.now()

	desired, factor, err := r.normalize(&req)
	if err != nil {
		return nil, st.fail(err)
	}
	resp := &Response{Results: []Result{}, SessionID: req.SessionID}

	if r.index.Len() == 0 {
		st.to(StateDone)
		resp.Elapsed = r.now().Sub(started)
		return resp, nil
	}

	// Step 1: EMBEDDING.
	st.to(StateEmbedding)
	query, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, st.fail(dserr.Wrapf(err, dserr.CodeEmbeddingUpstreamFailure, "embedding query"))
	}
	if len(query) != r.index.Dimension() {
		return nil, st.fail(dserr.Errorf(dserr.CodeVectorDimensionMismatch,
			"query embedding has dimension %d, index expects %d", len(query), r.index.Dimension()))
	}

	// Step 2: VECTOR_SEARCHING, over-fetching to absorb filter attrition.
	st.to(StateVectorSearching)
	k := desired * factor
	ids, scores, err := r.index.Search(ctx, query, k)
	if dserr.IsEmptyIndex(err) {
		st.to(StateDone)
		resp.Elapsed = r.now().Sub(started)
		return resp, nil
	}
	if err != nil {
		return nil, st.fail(err)
	}
	candidates := candidateIDs(ids)
	resp.Candidates = len(candidates)

	// Step 3: METADATA_FILTERING.
	st.to(StateMetadataFiltering)
	visible, err := r.filter(ctx, req, candidates)
	if err != nil {
		return nil, st.fail(err)
	}

	// Step 4: RANKING, in vector-search order.
	st.to(StateRanking)
	resp.Results = rank(ids, scores, visible, desired)

	st.to(StateDone)
	resp.Elapsed = r.now().Sub(started)

	r.log.DebugContext(ctx, "retrieve completed",
		slog.Int("k", k),
		slog.Int("candidates", len(candidates)),
		slog.Int("kept", len(visible)),
		slog.Int("results", len(resp.Results)),
		slog.Duration("elapsed", resp.Elapsed),
	)

	if r.opts.LogAnalytics {
		resp.SearchID = r.logSearch(ctx, req, resp)
	}
	return resp, nil
}

// normalize validates req, fills defaults, and returns the clamped desired
// result count and the compensation factor to use. The factor is capped so the
// over-fetch never exceeds store.MaxSearchK.
func (r *Retriever) normalize(req *Request) (int, int, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return 0, 0, dserr.New(dserr.CodeRetrievalRequestInvalid, "query must not be empty")
	}
	if !req.UpdatedFrom.IsZero() && !req.UpdatedTo.IsZero() && req.UpdatedTo.Before(req.UpdatedFrom) {
		return 0, 0, dserr.New(dserr.CodeRetrievalRequestInvalid, "date range ends before it starts")
	}

	desired := req.TopK
	if desired <= 0 {
		desired = r.opts.DefaultTopK
	}
	desired = min(desired, r.opts.MaxTopK)

	if req.CompensationFactor > store.MaxSearchK {
		return 0, 0, dserr.Errorf(dserr.CodeRetrievalRequestInvalid,
			"compensation factor must be at most %d, got %d", store.MaxSearchK, req.CompensationFactor)
	}
	factor := r.opts.CompensationFactor
	if req.CompensationFactor > 0 {
		factor = req.CompensationFactor
	}
	// desired * factor must not exceed what the index can search.
	factor = max(1, min(factor, store.MaxSearchK/desired))

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return desired, factor, nil
}

// filter looks up the candidates that pass every caller filter. Inactive and
// invalidated chunks are never returned by the store.
func (r *Retriever) filter(ctx context.Context, req Request, candidates []int64) (map[int64]*store.Chunk, error) {
	if len(candidates) == 0 {
		return map[int64]*store.Chunk{}, nil
	}
	rows, err := r.store.Chunks().Search(ctx, store.ChunkQuery{
		IDs:         candidates,
		DocumentIDs: req.DocumentIDs,
		Categories:  req.Categories,
		Languages:   req.Languages,
		TextSearch:  req.TextQuery,
		UserRoles:   req.UserRoles,
		UpdatedFrom: req.UpdatedFrom,
		UpdatedTo:   req.UpdatedTo,
		OrderBy:     store.OrderByID,
		Limit:       len(candidates),
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*store.Chunk, len(rows))
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

// candidateIDs drops NoResult padding and repeated ids, keeping search order.
func candidateIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id == store.NoResult {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// rank walks the original search order and emits up to desired results with
// continuous 1-based ranks. Hits without visible metadata are dropped.
func rank(ids []int64, scores []float32, visible map[int64]*store.Chunk, desired int) []Result {
	results := make([]Result, 0, min(desired, len(visible)))
	emitted := make(map[int64]struct{}, desired)
	for i, id := range ids {
		if len(results) == desired {
			break
		}
		c, ok := visible[id]
		if !ok {
			continue
		}
		if _, dup := emitted[id]; dup {
			continue
		}
		emitted[id] = struct{}{}
		results = append(results, Result{
			ID:         c.ID,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			Heading:    c.Heading,
			Text:       c.Text,
			Category:   c.Category,
			Source:     c.Source,
			StartPage:  c.StartPage,
			EndPage:    c.EndPage,
			Score:      scores[i],
			Rank:       len(results) + 1,
			Metadata:   c.Metadata,
		})
	}
	return results
}

// logSearch records the request in search_analytics. Failures are logged at
// an escalating level and never fail the retrieve.
func (r *Retriever) logSearch(ctx context.Context, req Request, resp *Response) int64 {
	top := make([]int64, len(resp.Results))
	for i, res := range resp.Results {
		top[i] = res.ID
	}
	id, err := r.store.Analytics().LogSearch(ctx, &store.SearchLog{
		QueryText:    req.Query,
		ResultsCount: len(resp.Results),
		TopChunkIDs:  top,
		SearchTimeMS: resp.Elapsed.Milliseconds(),
		UserID:       req.UserID,
		SessionID:    req.SessionID,
	})
	if err != nil {
		consecutive := r.analyticsFailCount.Add(1)
		level := slog.LevelWarn
		if consecutive >= analyticsEscalationThreshold {
			level = slog.LevelError
		}
		r.log.LogAttrs(ctx, level, "search analytics write failed",
			slog.Any("error", err),
			slog.Int64("consecutive_failures", consecutive),
		)
		return 0
	}
	r.analyticsFailCount.Store(0)
	return id
}
