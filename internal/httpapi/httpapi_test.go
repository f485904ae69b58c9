package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-ingestion/ingestion/internal/batch"
	"github.com/tas-ingestion/ingestion/internal/capture"
	"github.com/tas-ingestion/ingestion/internal/embedding"
	"github.com/tas-ingestion/ingestion/internal/integrity"
	"github.com/tas-ingestion/ingestion/internal/observability"
	"github.com/tas-ingestion/ingestion/internal/pipeline"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/releaselock"
	"github.com/tas-ingestion/ingestion/internal/retrieval"
	"github.com/tas-ingestion/ingestion/internal/vectorstore"
)

const sampleHTML = `<html><body><h1>Install</h1><p>Run the installer to configure your environment and deploy it.</p></body></html>`

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	dir := t.TempDir()
	releases := release.NewManager(filepath.Join(dir, "releases"))
	vs := vectorstore.NewLocalJsonlStore(filepath.Join(dir, "vectors"))
	embedder := embedding.NewDeterministicHashProvider(8)
	embedStore := embedding.NewFileStore(filepath.Join(dir, "embeddings"))
	obs := observability.NewStore(filepath.Join(dir, "observability"))

	pl := &pipeline.Pipeline{
		CanonicalRoot:  filepath.Join(dir, "canonical"),
		ChunksRoot:     filepath.Join(dir, "chunks"),
		MaxChunkChars:  800,
		Embedder:       embedder,
		EmbeddingStore: embedStore,
		VectorStore:    vs,
		Releases:       releases,
		Lock:           releaselock.NewInProcessLocker(),
	}

	batchSvc := &batch.Service{
		Pipeline:       pl,
		Releases:       releases,
		CanonicalRoot:  filepath.Join(dir, "canonical"),
		ChunksRoot:     filepath.Join(dir, "chunks"),
		EmbeddingsRoot: filepath.Join(dir, "embeddings"),
		VectorStore:    vs,
	}

	retrievalSvc := &retrieval.Service{
		Releases:          releases,
		Store:             vs,
		Embedder:          embedder,
		IngestionProvider: embedder.Name(),
		RetrievalProvider: embedder.Name(),
	}

	captures := capture.NewStore(filepath.Join(dir, "captures"), integrity.NewSigner("test-secret"))

	srv := &Server{
		Pipeline:      pl,
		Releases:      releases,
		Captures:      captures,
		Batch:         batchSvc,
		Retrieval:     retrievalSvc,
		Observability: obs,
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	adminRequired := func(c *gin.Context) { c.Next() }
	srv.Routes(router, adminRequired)
	return srv, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	_, router := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleIngestionRunAndRetrieve(t *testing.T) {
	_, router := newTestServer(t)

	runRec := doJSON(t, router, http.MethodPost, "/ingestion/run", map[string]any{
		"domain": "docs", "source_id": "src1", "release_id": "rel1", "raw_html": sampleHTML,
		"created_by": "alice",
	})
	require.Equal(t, http.StatusOK, runRec.Code)

	var runBody map[string]any
	require.NoError(t, json.Unmarshal(runRec.Body.Bytes(), &runBody))
	assert.Equal(t, "ok", runBody["status"])

	retrieveRec := doJSON(t, router, http.MethodPost, "/retrieve", map[string]any{
		"domain": "docs", "query": "install the project", "top_k": 3,
	})
	require.Equal(t, http.StatusOK, retrieveRec.Code)

	eventsRec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ingestion/docs/events", nil)
	router.ServeHTTP(eventsRec, req)
	assert.Equal(t, http.StatusOK, eventsRec.Code)

	metricsRec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ingestion/docs/metrics", nil)
	router.ServeHTTP(metricsRec, req)
	assert.Equal(t, http.StatusOK, metricsRec.Code)
}

func TestHandleIngestionRunMissingRawHTML(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/ingestion/run", map[string]any{
		"domain": "docs", "source_id": "src1", "release_id": "rel1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListReleasesAndPromote(t *testing.T) {
	_, router := newTestServer(t)

	runRec := doJSON(t, router, http.MethodPost, "/ingestion/run", map[string]any{
		"domain": "docs", "source_id": "src1", "release_id": "rel1", "raw_html": sampleHTML,
		"write_release": true,
	})
	require.Equal(t, http.StatusOK, runRec.Code)

	listRec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/releases/docs", nil)
	router.ServeHTTP(listRec, req)
	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "rel1")

	promoteRec := doJSON(t, router, http.MethodPost, "/releases/docs/promote", map[string]any{
		"release_id": "rel1", "promoted_by": "alice",
	})
	assert.Equal(t, http.StatusOK, promoteRec.Code)

	auditRec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/releases/docs/audit", nil)
	router.ServeHTTP(auditRec, req)
	assert.Equal(t, http.StatusOK, auditRec.Code)
	assert.Contains(t, auditRec.Body.String(), "security_release_promoted")
}

func TestHandlePromoteMissingReleaseID(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/releases/docs/promote", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRawCaptureAndQuarantine(t *testing.T) {
	_, router := newTestServer(t)

	captureSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer captureSrv.Close()

	captureRec := doJSON(t, router, http.MethodPost, "/ingestion/raw-capture", map[string]any{
		"source_id": "cap1", "domain": "docs", "url": captureSrv.URL, "clean": true,
	})
	require.Equal(t, http.StatusOK, captureRec.Code)

	quarantineRec := doJSON(t, router, http.MethodPost, "/ingestion/quarantine", map[string]any{
		"domain": "docs", "capture_id": "cap1", "reason": "suspicious",
	})
	require.Equal(t, http.StatusOK, quarantineRec.Code)
	assert.Contains(t, quarantineRec.Body.String(), "suspicious")
}

func TestHandleMerge(t *testing.T) {
	_, router := newTestServer(t)

	rec1 := doJSON(t, router, http.MethodPost, "/ingestion/run", map[string]any{
		"domain": "docs", "source_id": "src1", "release_id": "rel1", "raw_html": sampleHTML,
	})
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := doJSON(t, router, http.MethodPost, "/ingestion/run", map[string]any{
		"domain": "docs", "source_id": "src2", "release_id": "rel2",
		"raw_html": `<html><body><h1>Usage</h1><p>Use the CLI to create and initialize a new project.</p></body></html>`,
	})
	require.Equal(t, http.StatusOK, rec2.Code)

	mergeRec := doJSON(t, router, http.MethodPost, "/releases/docs/merge", map[string]any{
		"source_release_ids": []string{"rel1", "rel2"}, "target_release_id": "merged1",
	})
	assert.Equal(t, http.StatusOK, mergeRec.Code)
	assert.Contains(t, mergeRec.Body.String(), "merged1")
}
