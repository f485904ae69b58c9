package gates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestCheckReleaseRecordsClean(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "docs", "releases", "rel1", "release.json")
	writeJSON(t, path, map[string]any{"release_id": "rel1", "domain": "docs", "created_at": "2026-07-31T00:00:00Z"})

	issues := CheckReleaseRecords(root)
	assert.Empty(t, issues)
}

func TestCheckReleaseRecordsDetectsMismatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "docs", "releases", "rel1", "release.json")
	writeJSON(t, path, map[string]any{"release_id": "wrong", "domain": "docs", "created_at": "2026-07-31T00:00:00Z"})

	issues := CheckReleaseRecords(root)
	require.NotEmpty(t, issues)
	found := false
	for _, i := range issues {
		if i.Code == "release_id_mismatch" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckReleaseRecordsActiveReleaseMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "active_release.txt"), []byte("ghost"), 0o644))

	issues := CheckReleaseRecords(root)
	found := false
	for _, i := range issues {
		if i.Code == "active_release_missing" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckCanonicalStoreClean(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "docs", "rel1", "clo_"+repeatHexG(24)+".json")
	writeJSON(t, path, map[string]any{
		"id": "clo_" + repeatHexG(24), "domain": "docs", "title": "t", "body": []string{"a"},
		"concepts": []string{}, "provenance": map[string]any{"source_id": "src1", "release_id": "rel1"},
	})
	issues := CheckCanonicalStore(root)
	assert.Empty(t, issues)
}

func TestCheckChunkStoreIDMismatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "docs", "rel1", "chk_mismatch.json")
	writeJSON(t, path, map[string]any{
		"chunk_id": "chk_" + repeatHexG(24), "domain": "docs", "release_id": "rel1", "text": "hi",
	})
	issues := CheckChunkStore(root)
	found := false
	for _, i := range issues {
		if i.Code == "chunk_id_mismatch" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckVectorIndexMissingChunkFile(t *testing.T) {
	dir := t.TempDir()
	vectorRoot := filepath.Join(dir, "vectors")
	chunksRoot := filepath.Join(dir, "chunks")
	embeddingsRoot := filepath.Join(dir, "embeddings")

	indexPath := filepath.Join(vectorRoot, "docs", "rel1", "index.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	line, _ := json.Marshal(map[string]any{
		"chunk_id": "chk_missing", "domain": "docs", "release_id": "rel1",
		"text": "hi", "embedding_ref": "file:" + filepath.Join(embeddingsRoot, "docs", "rel1", "x.json"),
	})
	require.NoError(t, os.WriteFile(indexPath, append(line, '\n'), 0o644))

	issues := CheckVectorIndex(vectorRoot, chunksRoot, embeddingsRoot)
	found := false
	for _, i := range issues {
		if i.Code == "index_missing_chunk_file" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunAllSkipsMissingRoots(t *testing.T) {
	issues := RunAll(Roots{
		ReleasesRoot:   filepath.Join(t.TempDir(), "missing"),
		CanonicalRoot:  filepath.Join(t.TempDir(), "missing"),
		ChunksRoot:     filepath.Join(t.TempDir(), "missing"),
		EmbeddingsRoot: filepath.Join(t.TempDir(), "missing"),
		VectorRoot:     filepath.Join(t.TempDir(), "missing"),
	})
	assert.Empty(t, issues, "missing roots should be silently skipped, not treated as errors")
}

func repeatHexG(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = "0123456789abcdef"[i%16]
	}
	return string(out)
}
