// Package capture fetches raw content over HTTP and persists it as a
// content-addressed, signed capture record under
// <captures_root>/<domain>/<source_id>.{html,json}, plus manual quarantine
// marking. Only URL fetches are captured; there is no file-upload path and
// docconvert is not used here.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tas-ingestion/ingestion/internal/cleaner"
	"github.com/tas-ingestion/ingestion/internal/ingesterr"
	"github.com/tas-ingestion/ingestion/internal/integrity"
)

func sha256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Record is a capture's persisted metadata.
type Record struct {
	SourceID         string `json:"source_id"`
	Domain           string `json:"domain,omitempty"`
	URL              string `json:"url,omitempty"`
	HTTPStatus       int    `json:"http_status"`
	Headers          map[string]string `json:"headers"`
	RawHTMLPath      string `json:"raw_html_path"`
	ContentHash      string `json:"content_hash"`
	ContentSignature string `json:"content_signature"`
	RetrievedAt      string `json:"retrieved_at"`
	CaptureOK        bool   `json:"capture_ok"`
	CleanedText      string `json:"cleaned_text,omitempty"`
	Quarantined      bool   `json:"quarantined"`
	QuarantineReason string `json:"quarantine_reason,omitempty"`
	QuarantinedAt    string `json:"quarantined_at,omitempty"`
}

// Store persists capture records under one CAPTURES_ROOT.
type Store struct {
	Root   string
	Signer *integrity.Signer
	HTTP   *http.Client
}

// NewStore builds a Store with a bounded default HTTP client.
func NewStore(root string, signer *integrity.Signer) *Store {
	return &Store{Root: root, Signer: signer, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (s *Store) domainDir(domain string) string { return filepath.Join(s.Root, domain) }
func (s *Store) htmlPath(domain, sourceID string) string {
	return filepath.Join(s.domainDir(domain), sourceID+".html")
}
func (s *Store) metaPath(domain, sourceID string) string {
	return filepath.Join(s.domainDir(domain), sourceID+".json")
}

func utcNowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
}

// fetchURL performs a GET with a fixed User-Agent, returning the response
// status and body even on a non-2xx HTTP status (the capture is recorded as
// failed rather than as an error in that case).
func fetchURL(ctx context.Context, client *http.Client, url string, timeout time.Duration) (int, map[string]string, string, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: building request: %w", err)
	}
	req.Header.Set("User-Agent", "ingestion-service/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: fetching URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", fmt.Errorf("capture: reading response body: %w", err)
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, headers, string(body), nil
}

// RawCaptureInput is the request shape for capturing a URL.
type RawCaptureInput struct {
	SourceID             string
	Domain               string
	URL                  string
	TimeoutSeconds       int
	Clean                bool
	QuarantineSuspicious bool
}

// RawCapture fetches a URL, signs and persists the result, optionally
// quarantining it when the fetch did not produce a usable 2xx body.
func (s *Store) RawCapture(ctx context.Context, in RawCaptureInput) (Record, error) {
	if in.Domain == "" {
		return Record{}, ingesterr.NewValidation("domain", "domain is required")
	}
	if in.SourceID == "" {
		return Record{}, ingesterr.NewValidation("source_id", "source_id is required")
	}
	if in.URL == "" {
		return Record{}, ingesterr.NewValidation("url", "url is required")
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if in.TimeoutSeconds <= 0 {
		timeout = 10 * time.Second
	}

	status, headers, raw, err := fetchURL(ctx, s.HTTP, in.URL, timeout)
	if err != nil {
		return Record{}, ingesterr.NewBackend("capture.fetch", err)
	}

	captureOK := status >= 200 && status < 300 && len(trimSpace(raw)) > 0
	quarantined := in.QuarantineSuspicious && !captureOK
	quarantineReason := ""
	if quarantined {
		quarantineReason = "capture_failed"
	}

	if err := os.MkdirAll(s.domainDir(in.Domain), 0o755); err != nil {
		return Record{}, ingesterr.NewBackend("capture.mkdir", err)
	}
	rawPath := s.htmlPath(in.Domain, in.SourceID)
	if err := os.WriteFile(rawPath, []byte(raw), 0o644); err != nil {
		return Record{}, ingesterr.NewBackend("capture.write_raw", err)
	}

	contentHash := "sha256:" + sha256Hex(raw)
	contentSignature := s.Signer.Sign(contentHash)

	rec := Record{
		SourceID:         in.SourceID,
		Domain:           in.Domain,
		URL:              in.URL,
		HTTPStatus:       status,
		Headers:          headers,
		RawHTMLPath:      rawPath,
		ContentHash:      contentHash,
		ContentSignature: contentSignature,
		RetrievedAt:      utcNowISO(),
		CaptureOK:        captureOK,
		Quarantined:      quarantined,
		QuarantineReason: quarantineReason,
	}
	if in.Clean {
		rec.CleanedText = cleaner.CleanHTMLText(raw)
	}

	if err := s.save(in.Domain, in.SourceID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Load reads a persisted capture record, returning ingesterr.ErrNotFound
// when the capture does not exist.
func (s *Store) Load(domain, sourceID string) (Record, error) {
	raw, err := os.ReadFile(s.metaPath(domain, sourceID))
	if os.IsNotExist(err) {
		return Record{}, ingesterr.NewNotFound("capture", sourceID)
	}
	if err != nil {
		return Record{}, ingesterr.NewBackend("capture.load", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, ingesterr.NewBackend("capture.load.decode", err)
	}
	return rec, nil
}

func (s *Store) save(domain, sourceID string, rec Record) error {
	if err := os.MkdirAll(s.domainDir(domain), 0o755); err != nil {
		return ingesterr.NewBackend("capture.save.mkdir", err)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return ingesterr.NewBackend("capture.save.marshal", err)
	}
	if err := os.WriteFile(s.metaPath(domain, sourceID), b, 0o644); err != nil {
		return ingesterr.NewBackend("capture.save.write", err)
	}
	return nil
}

// Quarantine marks an existing capture as quarantined for reason (defaulting
// to "manual_quarantine").
func (s *Store) Quarantine(domain, sourceID, reason string) (Record, error) {
	rec, err := s.Load(domain, sourceID)
	if err != nil {
		return Record{}, err
	}
	if reason == "" {
		reason = "manual_quarantine"
	}
	rec.Quarantined = true
	rec.QuarantineReason = reason
	rec.QuarantinedAt = utcNowISO()
	if err := s.save(domain, sourceID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
