// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docsearch Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoquytuan/chatbotdangcap/internal/retrieval"
	"github.com/ngoquytuan/chatbotdangcap/internal/store"
	dserr "github.com/ngoquytuan/chatbotdangcap/pkg/errors"
	"github.com/ngoquytuan/chatbotdangcap/pkg/health"
)

func searchJSON(t *testing.T, args ...string) retrieval.Response {
	t.Helper()
	out := mustExecute(t, append([]string{"search", "--json"}, args...)...)
	var resp retrieval.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestIngestCommand(t *testing.T) {
	dir := testDataDir(t)
	path := writeBatch(t, dir)

	out := mustExecute(t, "ingest", path)
	assert.Contains(t, out, "noi-quy")
	assert.Contains(t, out, "Inserted")

	out = mustExecute(t, "ingest", "--json", path)
	var reports []retrieval.IngestReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].Inserted)
	assert.Equal(t, 3, reports[0].Duplicates)
}

func TestIngestCommand_BadFile(t *testing.T) {
	dir := testDataDir(t)
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := execute(t, "ingest", path)
	require.Error(t, err)
	assert.True(t, dserr.IsInvalidInput(err))

	_, err = execute(t, "ingest", filepath.Join(dir, "absent.json"))
	require.Error(t, err)
}

func TestSearchCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	stubQuery(t, axis(1))

	resp := searchJSON(t, "nghỉ phép", "--top-k", "2")
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "noi-quy-001", resp.Results[0].ChunkID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-4)
	assert.Positive(t, resp.SearchID)
	assert.NotEmpty(t, resp.SessionID)

	out := mustExecute(t, "search", "nghỉ", "phép")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "noi-quy-001")
	assert.Contains(t, out, "Điều 2")
}

func TestSearchCommand_CategoryFilter(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	stubQuery(t, axis(1))

	resp := searchJSON(t, "q", "--category", "security")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "noi-quy-002", resp.Results[0].ChunkID)
}

func TestSearchCommand_EmptyIndex(t *testing.T) {
	testDataDir(t)
	stubQuery(t, axis(0))

	resp := searchJSON(t, "anything")
	assert.Empty(t, resp.Results)
}

func TestSearchCommand_NoProvider(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))

	_, err := execute(t, "search", "q")
	require.Error(t, err)
	assert.True(t, dserr.IsUpstreamFailure(err))
}

func TestSearchCommand_BadDate(t *testing.T) {
	testDataDir(t)
	stubQuery(t, axis(0))

	_, err := execute(t, "search", "q", "--from", "yesterday")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeCLIInputInvalid))
}

func TestSearchCommand_FactorOutOfRange(t *testing.T) {
	testDataDir(t)
	stubQuery(t, axis(0))

	_, err := execute(t, "search", "q", "--factor", "100000")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeCLIInputInvalid))
}

func TestDeleteCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	stubQuery(t, axis(1))

	out := mustExecute(t, "delete", "noi-quy-001", "--reason", "superseded", "--user", "admin")
	assert.Contains(t, out, "noi-quy-001")

	resp := searchJSON(t, "q")
	for _, r := range resp.Results {
		assert.NotEqual(t, "noi-quy-001", r.ChunkID)
	}

	out = mustExecute(t, "audit", "--json", "--action", store.AuditActionSoftDelete)
	var entries []store.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].UserID)
	assert.Equal(t, "superseded", entries[0].Reason)

	_, err := execute(t, "delete", "noi-quy-001", "--reason", "again")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeCLIInputInvalid))
}

func TestDeleteCommand_Errors(t *testing.T) {
	testDataDir(t)

	_, err := execute(t, "delete", "missing")
	require.Error(t, err, "--reason is required")

	_, err = execute(t, "delete", "missing", "--reason", "x")
	require.Error(t, err)
	assert.True(t, dserr.IsNotFound(err))
}

func TestRebuildCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))

	out := mustExecute(t, "rebuild", "--json")
	var report retrieval.RebuildReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Rebuilt)

	out = mustExecute(t, "rebuild", "--verify", "--json")
	var verify retrieval.VerifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &verify))
	assert.True(t, verify.Consistent())
	assert.Equal(t, 3, verify.Indexed)

	out = mustExecute(t, "rebuild")
	assert.Contains(t, out, "Index rebuilt")
}

func TestRebuildCommand_RecoversMissingIndex(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	require.NoError(t, os.Remove(filepath.Join(dir, "vectors.idx")))
	stubQuery(t, axis(2))

	// Opening the engine rebuilds the missing index before searching.
	resp := searchJSON(t, "q", "--top-k", "1")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "noi-quy-002", resp.Results[0].ChunkID)
}

func TestStatsCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))

	out := mustExecute(t, "stats", "--json")
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(3), stats.Database.ActiveChunks)
	assert.Equal(t, int64(1), stats.Database.TotalDocuments)
	assert.Equal(t, 3, stats.Index.Vectors)
	assert.Equal(t, testDims, stats.Index.Dimension)

	out = mustExecute(t, "stats")
	assert.Contains(t, out, "Vector index")
}

func TestHealthCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))

	out := mustExecute(t, "health", "--json")
	var report struct {
		Store struct {
			Status health.Status `json:"status"`
		} `json:"store"`
		Index     retrieval.VerifyReport `json:"index"`
		Embedding struct {
			Provider  string `json:"provider"`
			Available bool   `json:"available"`
		} `json:"embedding"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, health.StatusHealthy, report.Store.Status)
	assert.True(t, report.Index.Consistent())
	assert.Equal(t, "none", report.Embedding.Provider)
	assert.False(t, report.Embedding.Available)

	out = mustExecute(t, "health")
	assert.Contains(t, out, "Metadata store")
	assert.Contains(t, out, "consistent")
}

func TestFeedbackAndHistory(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	stubQuery(t, axis(0))

	resp := searchJSON(t, "giờ làm việc")
	require.Positive(t, resp.SearchID)
	id := strconv.FormatInt(resp.SearchID, 10)

	mustExecute(t, "feedback", id, "4")

	out := mustExecute(t, "history", "--json")
	var logs []store.SearchLog
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "giờ làm việc", logs[0].QueryText)
	require.NotNil(t, logs[0].FeedbackScore)
	assert.Equal(t, 4, *logs[0].FeedbackScore)

	_, err := execute(t, "feedback", id, "9")
	require.Error(t, err)
	assert.True(t, dserr.IsInvalidInput(err))

	_, err = execute(t, "feedback", "9999", "3")
	require.Error(t, err)
	assert.True(t, dserr.IsNotFound(err))

	_, err = execute(t, "feedback", "abc", "3")
	require.Error(t, err)
}

func TestCleanupCommand(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))
	stubQuery(t, axis(0))
	searchJSON(t, "q")

	out := mustExecute(t, "cleanup", "--days", "1")
	assert.Contains(t, out, "Removed:")
	assert.Contains(t, out, " 0 search logs")

	out = mustExecute(t, "history", "--json")
	var logs []store.SearchLog
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	assert.Len(t, logs, 1, "recent searches survive cleanup")
}

func TestBackupAndVacuum(t *testing.T) {
	dir := testDataDir(t)
	mustExecute(t, "ingest", writeBatch(t, dir))

	dest := filepath.Join(t.TempDir(), "backup.db")
	out := mustExecute(t, "backup", dest)
	assert.Contains(t, out, "Backup written")

	_, err := os.Stat(dest)
	require.NoError(t, err)
	_, err = os.Stat(dest + ".idx")
	require.NoError(t, err)

	out = mustExecute(t, "vacuum")
	assert.Contains(t, out, "Vacuumed")
}

func TestInitCommand(t *testing.T) {
	dir := testDataDir(t)
	cfgPath := filepath.Join(dir, "conf", "docsearch.yaml")

	out := mustExecute(t, "init", "--path", cfgPath)
	assert.Contains(t, out, "Wrote config")
	assert.Contains(t, out, "0 vectors")

	_, err := os.Stat(cfgPath)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "vectors.idx"))
	require.NoError(t, err)

	out = mustExecute(t, "init", "--path", cfgPath)
	assert.Contains(t, out, "Config exists")
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docsearch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_dir: "+dir+"\nindex:\n  dimension: 4\n"), 0o600))

	out := mustExecute(t, "--config", cfgPath, "stats", "--json")
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, filepath.Join(dir, "vectors.idx"), stats.Index.Path)

	_, err := execute(t, "--config", filepath.Join(dir, "absent.yaml"), "stats")
	require.Error(t, err)
	assert.True(t, dserr.HasCode(err, dserr.CodeConfigLoadReadFailure))
}
