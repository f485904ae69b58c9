package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicHashProviderIsStable(t *testing.T) {
	p := NewDeterministicHashProvider(8)
	a, err := p.EmbedTexts(context.Background(), []string{"hello"})
	require.NoError(t, err)
	b, err := p.EmbedTexts(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a[0], 8)
}

func TestDeterministicHashProviderDefaultsDim(t *testing.T) {
	p := NewDeterministicHashProvider(0)
	assert.Equal(t, 16, p.Dim)
}

func TestOllamaProviderEmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider("nomic-embed-text", srv.URL, 5)
	vecs, err := p.EmbedTexts(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vecs[0])
}

func TestOllamaProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider("m", srv.URL, 5)
	_, err := p.EmbedTexts(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestFileStorePutAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ref, err := store.Put("docs", "rel1", "chk_1", []float64{0.5, 0.6})
	require.NoError(t, err)
	require.Contains(t, ref, "file:")

	path := ref[len("file:"):]
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored storedEmbedding
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "chk_1", stored.ChunkID)
	assert.Equal(t, []float64{0.5, 0.6}, stored.Vector)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != "")
}

func TestAttachEmbeddings(t *testing.T) {
	dir := t.TempDir()
	provider := NewDeterministicHashProvider(4)
	store := NewFileStore(dir)

	refs, err := AttachEmbeddings(context.Background(), []string{"a", "b"}, provider, store, "docs", "rel1", []string{"chk_a", "chk_b"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.Contains(t, ref, "file:")
	}
}
