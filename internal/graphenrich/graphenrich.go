// Package graphenrich optionally attaches concept-graph metadata
// (concept_id, level, graph_id, graph_version, dataset_version,
// index_version) to a canonical object by looking it up in a remote
// knowledge-graph service with a GET request, bearer-authenticated when an
// API key is configured; no tenant header is sent.
package graphenrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tas-ingestion/ingestion/internal/canonical"
)

// Enricher attaches optional graph metadata to a canonical object.
type Enricher interface {
	Enrich(ctx context.Context, obj canonical.Object) (canonical.Object, error)
}

// Client calls a remote concept-graph lookup API over HTTP.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New builds a Client with a bounded timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	ConceptID      string `json:"concept_id"`
	Level          string `json:"level"`
	GraphID        string `json:"graph_id"`
	GraphVersion   string `json:"graph_version"`
	DatasetVersion string `json:"dataset_version"`
	IndexVersion   string `json:"index_version"`
	Found          bool   `json:"found"`
}

// Enrich looks up obj's title against <base_url>/api/v1/concepts/match and
// fills in the optional graph fields when a match is found. A lookup
// failure or non-match leaves obj unchanged rather than aborting the run.
func (c *Client) Enrich(ctx context.Context, obj canonical.Object) (canonical.Object, error) {
	if c.BaseURL == "" {
		return obj, nil
	}

	q := url.Values{}
	q.Set("domain", obj.Domain)
	q.Set("title", obj.Title)
	reqURL := c.BaseURL + "/api/v1/concepts/match?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return obj, fmt.Errorf("graphenrich: build request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return obj, fmt.Errorf("graphenrich: calling %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return obj, fmt.Errorf("graphenrich: reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return obj, nil
	}
	if resp.StatusCode != http.StatusOK {
		return obj, fmt.Errorf("graphenrich: status %d: %s", resp.StatusCode, string(body))
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return obj, fmt.Errorf("graphenrich: decoding response: %w", err)
	}
	if !out.Found {
		return obj, nil
	}

	obj.ConceptID = out.ConceptID
	obj.Level = out.Level
	obj.GraphID = out.GraphID
	obj.GraphVersion = out.GraphVersion
	obj.DatasetVersion = out.DatasetVersion
	obj.IndexVersion = out.IndexVersion
	return obj, nil
}
