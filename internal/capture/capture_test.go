package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tas-ingestion/ingestion/internal/integrity"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(t.TempDir(), integrity.NewSigner("test-secret"))
}

func TestRawCaptureSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ingestion-service/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	s := newTestStore(t)
	rec, err := s.RawCapture(context.Background(), RawCaptureInput{
		SourceID: "src1", Domain: "docs", URL: srv.URL, Clean: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.CaptureOK)
	assert.Equal(t, http.StatusOK, rec.HTTPStatus)
	assert.Contains(t, rec.ContentSignature, "hmac-sha256:")
	assert.Contains(t, rec.CleanedText, "hello")
	assert.False(t, rec.Quarantined)
}

func TestRawCaptureQuarantinesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestStore(t)
	rec, err := s.RawCapture(context.Background(), RawCaptureInput{
		SourceID: "src2", Domain: "docs", URL: srv.URL, QuarantineSuspicious: true,
	})
	require.NoError(t, err)
	assert.False(t, rec.CaptureOK)
	assert.True(t, rec.Quarantined)
	assert.Equal(t, "capture_failed", rec.QuarantineReason)
}

func TestLoadRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	s := newTestStore(t)
	_, err := s.RawCapture(context.Background(), RawCaptureInput{SourceID: "src3", Domain: "docs", URL: srv.URL})
	require.NoError(t, err)

	rec, err := s.Load("docs", "src3")
	require.NoError(t, err)
	assert.Equal(t, "src3", rec.SourceID)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("docs", "missing")
	assert.Error(t, err)
}

func TestQuarantineDefaultReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	s := newTestStore(t)
	_, err := s.RawCapture(context.Background(), RawCaptureInput{SourceID: "src4", Domain: "docs", URL: srv.URL})
	require.NoError(t, err)

	rec, err := s.Quarantine("docs", "src4", "")
	require.NoError(t, err)
	assert.True(t, rec.Quarantined)
	assert.Equal(t, "manual_quarantine", rec.QuarantineReason)
	assert.NotEmpty(t, rec.QuarantinedAt)
}

func TestRawCaptureRequiresFields(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RawCapture(context.Background(), RawCaptureInput{})
	assert.Error(t, err)
}
