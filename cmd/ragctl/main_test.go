package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/statute-rag/internal/api"
	"github.com/bull/statute-rag/internal/storage"
)

// setupEnv points ragctl at a fresh bbolt store with the hash embedder.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for k, v := range map[string]string{
		"CONFIG_FILE":         "",
		"STORE_HOST":          "",
		"STORE_PATH":          t.TempDir(),
		"COLLECTION_NAME":     "law_knowledge",
		"EMBEDDING_PROVIDER":  "hash",
		"EMBEDDING_DIMENSION": "128",
		"LOG_LEVEL":           "error",
	} {
		t.Setenv(k, v)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeStatutes(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"民法典.txt": "第五百七十七条 当事人一方不履行合同义务或者履行合同义务不符合约定的，应当承担继续履行、采取补救措施或者赔偿损失等违约责任。",
		"刑法.txt":  "第二百三十二条 故意杀人的，处死刑、无期徒刑或者十年以上有期徒刑。",
	}
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}
	return dir
}

func TestIngestAndQuery(t *testing.T) {
	setupEnv(t)
	dir := writeStatutes(t)

	out, err := execute(t, "ingest", dir, "--quiet", "--category", "法律", "--exclude", "**/*.md")
	require.NoError(t, err)
	assert.Contains(t, out, "Files processed: 2")
	assert.Contains(t, out, "Chunks created:  2")

	out, err = execute(t, "ingest", dir, "--quiet", "--category", "法律")
	require.NoError(t, err)
	assert.Contains(t, out, "Chunks created:  0")

	out, err = execute(t, "collection", "info", "--json")
	require.NoError(t, err)
	var stats api.StatsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, api.StatsResponse{RecordCount: 2, Dimension: 128, DistanceMetric: "Cosine", CollectionName: "law_knowledge"}, stats)

	out, err = execute(t, "search", "不履行合同义务的违约责任", "-k", "1", "--json")
	require.NoError(t, err)
	var search api.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &search))
	require.Len(t, search.Results, 1)
	assert.Equal(t, "民法典.txt", search.Results[0].SourceFile)
	assert.Equal(t, "法律", search.Results[0].Category)

	out, err = execute(t, "context", "--facts", "被告故意杀人", "--min-score", "0.05", "--filter", "source_file=刑法.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "【相关法律法规】"))
	assert.Contains(t, out, "来源: 刑法.txt")
	assert.NotContains(t, out, "民法典.txt")
}

func TestDeleteAndScroll(t *testing.T) {
	setupEnv(t)
	dir := writeStatutes(t)
	_, err := execute(t, "ingest", dir, "--quiet")
	require.NoError(t, err)

	_, err = execute(t, "delete", "--source-file", "刑法.txt")
	assert.Error(t, err, "delete needs --yes")
	_, err = execute(t, "delete", "--filter", `{"source_file":"刑法.txt"}`, "--yes")
	require.NoError(t, err)

	out, err := execute(t, "scroll", "--all", "--json")
	require.NoError(t, err)
	var page struct {
		Records []scrollRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, "民法典.txt", page.Records[0].Payload.SourceFile)

	_, err = execute(t, "delete")
	assert.Error(t, err)
}

func TestCollectionLifecycle(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "collection", "create", "statutes", "--dim", "8")
	require.NoError(t, err)

	_, err = execute(t, "collection", "create", "statutes", "--dim", "16")
	assert.ErrorIs(t, err, storage.ErrCollectionConflict)

	out, err := execute(t, "collection", "list")
	require.NoError(t, err)
	assert.Equal(t, "statutes\n", out)

	_, err = execute(t, "collection", "drop", "statutes")
	assert.Error(t, err)
	_, err = execute(t, "collection", "drop", "statutes", "--yes")
	require.NoError(t, err)

	_, err = execute(t, "collection", "info", "statutes")
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, storage.ErrCollectionNotFound)
	assert.True(t, strings.HasPrefix(buf.String(), "Error [COLLECTION_NOT_FOUND]: "))
}

func TestParseFilterFlags(t *testing.T) {
	f, err := parseFilterFlags([]string{"category=民法", "chunk_index=3", "draft=false"})
	require.NoError(t, err)
	require.Len(t, f.Must, 3)
	assert.True(t, f.Matches(map[string]any{"category": "民法", "chunk_index": int64(3), "draft": false}))

	f, err = parseFilterFlags([]string{`{"source_file":"刑法.txt","chunk_index":0}`})
	require.NoError(t, err)
	assert.True(t, f.Matches(map[string]any{"source_file": "刑法.txt", "chunk_index": int64(0)}))

	_, err = parseFilterFlags([]string{`{"category":{"$in":["民法"]}}`})
	assert.ErrorIs(t, err, storage.ErrInvalidFilter)

	f, err = parseFilterFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = parseFilterFlags([]string{"novalue"})
	assert.ErrorIs(t, err, storage.ErrInvalidFilter)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "第一条 总则", preview("第一条\n  总则", 10))
	assert.Equal(t, "第一…", preview("第一条", 2))
}
