package graphenrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tas-ingestion/ingestion/internal/canonical"
)

func TestEnrichAttachesMetadataOnMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/concepts/match", r.URL.Path)
		assert.Equal(t, "docs", r.URL.Query().Get("domain"))
		_ = json.NewEncoder(w).Encode(lookupResponse{
			ConceptID: "concept_1", Level: "beginner", GraphID: "g1", Found: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	obj := canonical.Object{Domain: "docs", Title: "Getting Started"}
	out, err := c.Enrich(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, "concept_1", out.ConceptID)
	assert.Equal(t, "beginner", out.Level)
}

func TestEnrichLeavesUnchangedOnNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(lookupResponse{Found: false})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	obj := canonical.Object{Domain: "docs", Title: "Unknown"}
	out, err := c.Enrich(context.Background(), obj)
	require.NoError(t, err)
	assert.Empty(t, out.ConceptID)
}

func TestEnrich404IsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	obj := canonical.Object{Domain: "docs", Title: "Missing"}
	out, err := c.Enrich(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, obj, out)
}

func TestEnrichNoBaseURLIsNoop(t *testing.T) {
	c := New("", "", 0)
	obj := canonical.Object{Domain: "docs", Title: "X"}
	out, err := c.Enrich(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, obj, out)
}
