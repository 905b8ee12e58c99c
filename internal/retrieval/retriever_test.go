// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
)

func TestRetrieve_EmptyIndexReturnsNoResults(t *testing.T) {
	env := newTestEnv(t, testDims)
	r := env.retriever(t, retrieval.Options{}, nil)

	resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "anything", TopK: 5})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, env.embedder.callCount(), "empty index must not call the embedder")
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	env := newTestEnv(t, testDims)
	r := env.retriever(t, retrieval.Options{}, nil)

	_, err := r.Retrieve(context.Background(), retrieval.Request{Query: "   "})
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeRetrievalRequestInvalid))
}

func TestRetrieve_CategoryFilter(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "h-1", category: "history", vec: unitVec(testDims, 0, 0.3)},
		chunkSpec{id: "h-2", category: "history", vec: unitVec(testDims, 0, 0.1)},
		chunkSpec{id: "l-1", category: "law", vec: unitVec(testDims, 0, 0)},
	))
	env.embedder.vectors["lịch sử"] = unitVec(testDims, 0, 0)

	r := env.retriever(t, retrieval.Options{}, nil)
	resp, err := r.Retrieve(context.Background(), retrieval.Request{
		Query:      "lịch sử",
		TopK:       5,
		Categories: []string{"history"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "h-2", resp.Results[0].ChunkID)
	assert.Equal(t, "h-1", resp.Results[1].ChunkID)
	for i, res := range resp.Results {
		assert.Equal(t, "history", res.Category)
		assert.Equal(t, i+1, res.Rank)
	}
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
	assert.Equal(t, 3, resp.Candidates)
}

func TestRetrieve_RankMonotonicity(t *testing.T) {
	env := newTestEnv(t, testDims)
	var specs []chunkSpec
	for i := range 12 {
		specs = append(specs, chunkSpec{
			id:  fmt.Sprintf("c-%02d", i),
			vec: unitVec(testDims, i%testDims, float64(i)/20),
		})
	}
	env.ingest(t, batchOf("doc-1", specs...))

	r := env.retriever(t, retrieval.Options{}, nil)
	resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q", TopK: 8})
	require.NoError(t, err)
	require.Len(t, resp.Results, 8)

	for i, res := range resp.Results {
		assert.Equal(t, i+1, res.Rank)
		if i > 0 {
			assert.LessOrEqual(t, res.Score, resp.Results[i-1].Score)
		}
	}
}

func TestRetrieve_RoleFilter(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "admin-only", roles: []string{"admin"}, vec: unitVec(testDims, 0, 0)},
		chunkSpec{id: "public", roles: []string{"all"}, vec: unitVec(testDims, 0, 0.2)},
	))
	r := env.retriever(t, retrieval.Options{}, nil)

	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{name: "user sees public only", roles: []string{"user"}, want: []string{"public"}},
		{name: "admin sees both", roles: []string{"admin"}, want: []string{"admin-only", "public"}},
		{name: "no roles applies no restriction", roles: nil, want: []string{"admin-only", "public"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q", TopK: 5, UserRoles: tt.roles})
			require.NoError(t, err)
			got := make([]string, len(resp.Results))
			for i, res := range resp.Results {
				got[i] = res.ChunkID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieve_ExcludesSoftDeleted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "keep", vec: unitVec(testDims, 0, 0.2)},
		chunkSpec{id: "gone", vec: unitVec(testDims, 0, 0)},
	))

	ok, err := env.store.Chunks().SoftDelete(ctx, "gone", "", "outdated", "tester")
	require.NoError(t, err)
	require.True(t, ok)

	r := env.retriever(t, retrieval.Options{}, nil)
	resp, err := r.Retrieve(ctx, retrieval.Request{Query: "q", TopK: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "keep", resp.Results[0].ChunkID)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestRetrieve_CompensatesForFilteredCandidates(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "x-1", category: "law", vec: unitVec(testDims, 0, 0)},
		chunkSpec{id: "x-2", category: "law", vec: unitVec(testDims, 0, 0.05)},
		chunkSpec{id: "h-1", category: "history", vec: unitVec(testDims, 0, 0.1)},
		chunkSpec{id: "h-2", category: "history", vec: unitVec(testDims, 0, 0.15)},
	))
	r := env.retriever(t, retrieval.Options{CompensationFactor: 2}, nil)

	resp, err := r.Retrieve(context.Background(), retrieval.Request{
		Query: "q", TopK: 2, Categories: []string{"history"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2, "over-fetch of 4 candidates must still yield 2 history chunks")

	resp, err = r.Retrieve(context.Background(), retrieval.Request{
		Query: "q", TopK: 2, Categories: []string{"history"}, CompensationFactor: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "without over-fetch both candidates are law chunks")
}

func TestRetrieve_TopKIsClamped(t *testing.T) {
	env := newTestEnv(t, testDims)
	var specs []chunkSpec
	for i := range 5 {
		specs = append(specs, chunkSpec{id: fmt.Sprintf("c-%d", i), vec: unitVec(testDims, 0, float64(i)/10)})
	}
	env.ingest(t, batchOf("doc-1", specs...))
	r := env.retriever(t, retrieval.Options{MaxTopK: 2, DefaultTopK: 1}, nil)

	resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q", TopK: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = r.Retrieve(context.Background(), retrieval.Request{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

// searchRecorder remembers the k of the last Search call.
type searchRecorder struct {
	store.VectorIndex
	lastK int
}

func (s *searchRecorder) Search(ctx context.Context, query []float32, k int) ([]int64, []float32, error) {
	s.lastK = k
	return s.VectorIndex.Search(ctx, query, k)
}

func TestRetrieve_OverFetchIsBounded(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1", chunkSpec{id: "c-1", vec: unitVec(testDims, 0, 0)}))

	rec := &searchRecorder{VectorIndex: env.index}
	r, err := retrieval.NewRetriever(retrieval.Config{
		Store:    env.store,
		Index:    rec,
		Embedder: env.embedder,
		Options:  retrieval.Options{CompensationFactor: 3_000_000},
	})
	require.NoError(t, err)

	resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q", TopK: 20})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Positive(t, rec.lastK)
	assert.LessOrEqual(t, rec.lastK, store.MaxSearchK)

	_, err = r.Retrieve(context.Background(), retrieval.Request{Query: "q", TopK: 20, CompensationFactor: 1000})
	require.NoError(t, err)
	assert.Equal(t, 20*(store.MaxSearchK/20), rec.lastK)

	_, err = r.Retrieve(context.Background(), retrieval.Request{Query: "q", CompensationFactor: math.MaxInt})
	require.Error(t, err)
	assert.True(t, dserr.IsInvalidInput(err))
}

func TestRetrieve_StateTransitions(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1", chunkSpec{id: "a", vec: unitVec(testDims, 0, 0)}))

	var seen []retrieval.State
	hooks := &retrieval.Hooks{OnTransition: func(_, to retrieval.State) { seen = append(seen, to) }}
	r := env.retriever(t, retrieval.Options{}, hooks)

	_, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []retrieval.State{
		retrieval.StateEmbedding,
		retrieval.StateVectorSearching,
		retrieval.StateMetadataFiltering,
		retrieval.StateRanking,
		retrieval.StateDone,
	}, seen)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1", chunkSpec{id: "a", vec: unitVec(testDims, 0, 0)}))
	env.embedder.err = errors.New("connection refused")

	var last retrieval.State
	hooks := &retrieval.Hooks{OnTransition: func(_, to retrieval.State) { last = to }}
	r := env.retriever(t, retrieval.Options{}, hooks)

	resp, err := r.Retrieve(context.Background(), retrieval.Request{Query: "q"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, dserr.IsUpstreamFailure(err))
	assert.Equal(t, retrieval.StateFailed, last)
}

func TestRetrieve_QueryDimensionMismatch(t *testing.T) {
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1", chunkSpec{id: "a", vec: unitVec(testDims, 0, 0)}))
	env.embedder.vectors["short"] = unitVec(3, 0, 0)

	r := env.retriever(t, retrieval.Options{}, nil)
	_, err := r.Retrieve(context.Background(), retrieval.Request{Query: "short"})
	require.Error(t, err)
	assert.True(t, dserr.IsDimensionMismatch(err))
}

func TestRetrieve_LogsAnalytics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "a", vec: unitVec(testDims, 0, 0)},
		chunkSpec{id: "b", vec: unitVec(testDims, 0, 0.3)},
	))
	r := env.retriever(t, retrieval.Options{LogAnalytics: true}, nil)

	resp, err := r.Retrieve(ctx, retrieval.Request{Query: "thời hạn hợp đồng", UserID: "u-1"})
	require.NoError(t, err)
	assert.Positive(t, resp.SearchID)
	assert.NotEmpty(t, resp.SessionID)

	logs, err := env.store.Analytics().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "thời hạn hợp đồng", logs[0].QueryText)
	assert.Equal(t, 2, logs[0].ResultsCount)
	assert.Equal(t, "u-1", logs[0].UserID)
	assert.Equal(t, resp.SessionID, logs[0].SessionID)
	assert.Equal(t, []int64{resp.Results[0].ID, resp.Results[1].ID}, logs[0].TopChunkIDs)
}

func TestNewRetriever_RequiresDependencies(t *testing.T) {
	_, err := retrieval.NewRetriever(retrieval.Config{})
	require.Error(t, err)
	assert.True(t, dserr.IsInvalidInput(err))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "metadata_filtering", retrieval.StateMetadataFiltering.String())
	assert.Equal(t, "unknown", retrieval.State(42).String())
}

// Guards against result ids drifting from store ids.
func TestRetrieve_ResultIDsMatchStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testDims)
	env.ingest(t, batchOf("doc-1",
		chunkSpec{id: "a", vec: unitVec(testDims, 0, 0)},
		chunkSpec{id: "b", vec: unitVec(testDims, 1, 0)},
	))
	r := env.retriever(t, retrieval.Options{}, nil)

	resp, err := r.Retrieve(ctx, retrieval.Request{Query: "q", TopK: 2})
	require.NoError(t, err)
	for _, res := range resp.Results {
		c, err := env.store.Chunks().Get(ctx, res.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, res.ID)
		assert.NotEqual(t, store.NoResult, res.ID)
	}
}
