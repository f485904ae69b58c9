// Package retrieval resolves a release, embeds a query, and runs a filtered
// top-k cosine query against the vector index, optionally through a cache.
package retrieval

import (
	"context"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/ingesterr"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/retrievalcache"
	"github.com/tas-ingestion/ingestion/internal/vectorstore"
)

// Service wraps release resolution and vector store querying.
type Service struct {
	Releases            *release.Manager
	Store               vectorstore.Adapter
	Embedder            Embedder
	Cache               *retrievalcache.Cache
	MaxChars            int
	IngestionProvider    string
	RetrievalProvider    string
}

// Embedder is the subset of embedding.Provider retrieval needs.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Result is the response shape for a retrieval query.
type Result struct {
	Domain    string                  `json:"domain"`
	ReleaseID string                  `json:"release_id"`
	Results   []vectorstore.ScoredRow `json:"results"`
	Warnings  []string                `json:"warnings"`
}

func (s *Service) resolveReleaseID(domain, releaseID string) (string, error) {
	if releaseID != "" {
		return releaseID, nil
	}
	active, err := s.Releases.GetActiveRelease(domain)
	if err != nil {
		return "", err
	}
	if active == "" {
		return "", ingesterr.NewNotFound("active_release", domain)
	}
	return active, nil
}

func (s *Service) trimQuery(text string) string {
	trimmed := strings.TrimSpace(text)
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	if len(trimmed) > maxChars {
		return trimmed[:maxChars]
	}
	return trimmed
}

// Query runs a retrieval query for domain, optionally pinned to releaseID.
func (s *Service) Query(ctx context.Context, domain, query string, filters map[string]string, topK int, releaseID string) (*Result, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ingesterr.NewValidation("query", "query is required")
	}

	resolvedReleaseID, err := s.resolveReleaseID(domain, releaseID)
	if err != nil {
		return nil, err
	}

	queryText := s.trimQuery(query)
	if queryText == "" {
		return nil, ingesterr.NewValidation("query", "query is required")
	}

	if topK <= 0 {
		topK = 5
	}

	var cacheKey string
	if s.Cache != nil {
		cacheKey = retrievalcache.Key(domain, resolvedReleaseID, queryText, filters, topK)
		var cached Result
		if s.Cache.GetJSON(ctx, cacheKey, &cached) {
			cached.Warnings = s.warnings()
			return &cached, nil
		}
	}

	vectors, err := s.Embedder.EmbedTexts(ctx, []string{queryText})
	if err != nil {
		return nil, ingesterr.NewBackend("retrieval.embed", err)
	}

	rows, err := s.Store.Query(domain, resolvedReleaseID, vectors[0], filters, topK)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Domain:    domain,
		ReleaseID: resolvedReleaseID,
		Results:   rows,
		Warnings:  s.warnings(),
	}

	if s.Cache != nil {
		_ = s.Cache.SetJSON(ctx, cacheKey, result)
	}
	return result, nil
}

func (s *Service) warnings() []string {
	if s.IngestionProvider != "" && s.RetrievalProvider != "" && s.IngestionProvider != s.RetrievalProvider {
		return []string{
			"Embedding provider mismatch: ingestion uses " + s.IngestionProvider +
				", retrieval uses " + s.RetrievalProvider +
				". Set RETRIEVAL_EMBED_PROVIDER to match ingestion.",
		}
	}
	return nil
}
