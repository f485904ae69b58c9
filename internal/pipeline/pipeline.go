// Package pipeline orchestrates the full ingestion run: clean -> distill ->
// classify -> canonicalize -> chunk -> embed -> vector-upsert -> release.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/canonical"
	"github.com/tas-ingestion/ingestion/internal/chunker"
	"github.com/tas-ingestion/ingestion/internal/classifier"
	"github.com/tas-ingestion/ingestion/internal/distiller"
	"github.com/tas-ingestion/ingestion/internal/embedding"
	"github.com/tas-ingestion/ingestion/internal/ingesterr"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/releaselock"
	"github.com/tas-ingestion/ingestion/internal/vectorstore"
)

func sha256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Stats reports per-stage counts for a run.
type Stats struct {
	SectionsTotal    int `json:"sections_total"`
	SectionsKept     int `json:"sections_kept"`
	CanonicalObjects int `json:"canonical_objects"`
	Chunks           int `json:"chunks"`
	Embeddings       int `json:"embeddings"`
}

// RunResult is the outcome of a single ingestion run.
type RunResult struct {
	Status    string         `json:"status"`
	Domain    string         `json:"domain"`
	ReleaseID string         `json:"release_id"`
	Release   map[string]any `json:"release,omitempty"`
	Stats     Stats          `json:"stats"`
}

// Pipeline wires the stage collaborators for a single ingestion run.
type Pipeline struct {
	CanonicalRoot string
	ChunksRoot    string
	MaxChunkChars int

	Embedder      embedding.Provider
	EmbeddingStore embedding.Store
	VectorStore   vectorstore.Adapter
	Releases      *release.Manager
	Lock          releaselock.Locker
	// Enrich, when non-nil, attaches optional graph metadata to each
	// canonical object before chunking (see internal/graphenrich).
	Enrich func(canonical.Object) canonical.Object
}

// RunInput is the request shape for a single ingestion run.
type RunInput struct {
	Domain        string
	SourceID      string
	ReleaseID     string
	RawHTML       string
	CreatedBy     string
	WriteRelease  bool
}

// Run executes the full pipeline for one HTML document.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if strings.TrimSpace(in.Domain) == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return nil, ingesterr.NewValidation("source_id", "source_id is required")
	}
	if strings.TrimSpace(in.ReleaseID) == "" {
		return nil, ingesterr.NewValidation("release_id", "release_id is required")
	}
	if strings.TrimSpace(in.RawHTML) == "" {
		return nil, ingesterr.NewValidation("raw_html", "raw_html is required")
	}

	sourceHash := sha256Hex(in.RawHTML)
	sections := distiller.DistillSectionsFromHTML(in.RawHTML, in.Domain, sourceHash)
	kept, _ := classifier.FilterInstructional(sections)

	clos, err := canonical.Canonicalize(kept, in.Domain, in.SourceID, in.ReleaseID, canonical.Options{
		StorageRoot: p.CanonicalRoot,
		Persist:     true,
		Enrich:      p.Enrich,
	})
	if err != nil {
		return nil, err
	}

	chunks := chunker.ChunkObjects(clos, in.Domain, in.ReleaseID, p.MaxChunkChars)
	if _, err := chunker.Persist(chunks, p.ChunksRoot); err != nil {
		return nil, err
	}

	if p.Lock != nil {
		unlock, err := p.Lock.Lock(ctx, in.Domain, in.ReleaseID)
		if err != nil {
			return nil, ingesterr.NewBackend("pipeline.lock", err)
		}
		defer unlock()
	}

	texts := make([]string, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		chunkIDs[i] = c.ChunkID
	}
	refs, err := embedding.AttachEmbeddings(ctx, texts, p.Embedder, p.EmbeddingStore, in.Domain, in.ReleaseID, chunkIDs)
	if err != nil {
		return nil, ingesterr.NewBackend("pipeline.embed", err)
	}

	storeInputs := make([]vectorstore.ChunkInput, len(chunks))
	for i, c := range chunks {
		storeInputs[i] = vectorstore.ChunkInput{
			ChunkID: c.ChunkID, Domain: c.Domain, ReleaseID: c.ReleaseID, Text: c.Text,
			EmbeddingRef: refs[i], ConceptID: c.ConceptID, Level: c.Level,
			GraphID: c.GraphID, GraphVersion: c.GraphVersion,
			DatasetVersion: c.DatasetVersion, IndexVersion: c.IndexVersion,
		}
	}
	if err := p.VectorStore.Upsert(in.Domain, in.ReleaseID, storeInputs); err != nil {
		return nil, err
	}

	stats := Stats{
		SectionsTotal:    len(sections),
		SectionsKept:     len(kept),
		CanonicalObjects: len(clos),
		Chunks:           len(chunks),
		Embeddings:       len(refs),
	}

	var releaseMeta map[string]any
	if in.WriteRelease && p.Releases != nil {
		releaseMeta, err = p.Releases.CreateRelease(in.Domain, in.ReleaseID, in.CreatedBy, map[string]any{
			"source_id":   in.SourceID,
			"source_hash": sourceHash,
			"stats": map[string]int{
				"sections_total":    stats.SectionsTotal,
				"sections_kept":     stats.SectionsKept,
				"canonical_objects": stats.CanonicalObjects,
				"chunks":            stats.Chunks,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return &RunResult{
		Status:    "ok",
		Domain:    in.Domain,
		ReleaseID: in.ReleaseID,
		Release:   releaseMeta,
		Stats:     stats,
	}, nil
}
