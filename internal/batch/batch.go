// Package batch aggregates many raw-HTML items into a single release via
// repeated pipeline runs, and merges multiple existing releases of the same
// domain into a new target release.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/canonical"
	"github.com/tas-ingestion/ingestion/internal/ingesterr"
	"github.com/tas-ingestion/ingestion/internal/pipeline"
	"github.com/tas-ingestion/ingestion/internal/release"
	"github.com/tas-ingestion/ingestion/internal/vectorstore"
)

// Item is one document to ingest as part of a batch run.
type Item struct {
	SourceID string
	RawHTML  string
}

// ItemResult reports the outcome of a single batch item.
type ItemResult struct {
	SourceID string          `json:"source_id"`
	OK       bool            `json:"ok"`
	Counts   *pipeline.Stats `json:"counts,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RunInput is the request shape for a batch ingestion run.
type RunInput struct {
	Domain          string
	ReleaseID       string
	CreatedBy       string
	Items           []Item
	ContinueOnError bool
}

// RunResult is the aggregate outcome of a batch ingestion run.
type RunResult struct {
	Status    string          `json:"status"`
	Domain    string          `json:"domain"`
	ReleaseID string          `json:"release_id"`
	Items     []ItemResult    `json:"items"`
	Counts    pipeline.Stats  `json:"counts"`
	Release   map[string]any  `json:"release,omitempty"`
}

// Service runs batch ingestion and release merges on top of a Pipeline and
// Manager that already hold the domain's storage roots.
type Service struct {
	Pipeline       *pipeline.Pipeline
	Releases       *release.Manager
	CanonicalRoot  string
	ChunksRoot     string
	EmbeddingsRoot string
	VectorStore    *vectorstore.LocalJsonlStore
}

// Run creates (or reuses) release_id, then ingests every item with
// write_release=false, aggregating counts additively and stopping at the
// first failure unless ContinueOnError is set.
func (s *Service) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if strings.TrimSpace(in.Domain) == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if strings.TrimSpace(in.ReleaseID) == "" {
		return nil, ingesterr.NewValidation("release_id", "release_id is required")
	}
	if len(in.Items) == 0 {
		return nil, ingesterr.NewValidation("items", "at least one item is required")
	}

	releaseMeta, err := s.Releases.CreateRelease(in.Domain, in.ReleaseID, in.CreatedBy, map[string]any{
		"mode": "batch",
	})
	if err != nil {
		return nil, err
	}

	var results []ItemResult
	var total pipeline.Stats
	failed := false

	for _, item := range in.Items {
		res, err := s.Pipeline.Run(ctx, pipeline.RunInput{
			Domain:       in.Domain,
			SourceID:     item.SourceID,
			ReleaseID:    in.ReleaseID,
			RawHTML:      item.RawHTML,
			CreatedBy:    in.CreatedBy,
			WriteRelease: false,
		})
		if err != nil {
			failed = true
			results = append(results, ItemResult{SourceID: item.SourceID, OK: false, Error: err.Error()})
			if !in.ContinueOnError {
				break
			}
			continue
		}
		total.SectionsTotal += res.Stats.SectionsTotal
		total.SectionsKept += res.Stats.SectionsKept
		total.CanonicalObjects += res.Stats.CanonicalObjects
		total.Chunks += res.Stats.Chunks
		total.Embeddings += res.Stats.Embeddings
		stats := res.Stats
		results = append(results, ItemResult{SourceID: item.SourceID, OK: true, Counts: &stats})
	}

	status := "success"
	if failed {
		status = "failed"
		anyOK := false
		for _, r := range results {
			if r.OK {
				anyOK = true
				break
			}
		}
		if anyOK {
			status = "partial"
		}
	}

	return &RunResult{
		Status:    status,
		Domain:    in.Domain,
		ReleaseID: in.ReleaseID,
		Items:     results,
		Counts:    total,
		Release:   releaseMeta,
	}, nil
}

// MergeInput is the request shape for merging releases.
type MergeInput struct {
	Domain           string
	SourceReleaseIDs []string
	TargetReleaseID  string
	CreatedBy        string
}

// MergeResult reports what Merge wrote.
type MergeResult struct {
	RowsWritten       int      `json:"rows_written"`
	DuplicatesSkipped int      `json:"duplicates_skipped"`
	SourceReleases    []string `json:"source_releases"`
	TargetReleaseID   string   `json:"target_release_id"`
}

// Merge combines ≥2 source releases of the same domain into a new (or
// reused) target release: canonical objects are best-effort copied (skipped
// if the destination already exists), and index rows are copied first-wins
// by chunk_id in source order, with their chunk and embedding files copied
// alongside and rewritten to the target domain/release_id.
func (s *Service) Merge(ctx context.Context, in MergeInput) (*MergeResult, error) {
	if strings.TrimSpace(in.Domain) == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if len(in.SourceReleaseIDs) < 2 {
		return nil, ingesterr.NewValidation("source_release_ids", "merge requires at least 2 source releases")
	}

	target := strings.TrimSpace(in.TargetReleaseID)
	if target == "" {
		target = "merge_" + strings.Join(in.SourceReleaseIDs, "_")
		if len(target) > 120 {
			target = target[:120]
		}
	}

	if _, err := s.Releases.CreateRelease(in.Domain, target, in.CreatedBy, map[string]any{
		"mode":               "merge",
		"source_release_ids": in.SourceReleaseIDs,
	}); err != nil {
		return nil, err
	}

	if err := s.copyCanonicalObjects(in.Domain, in.SourceReleaseIDs, target); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	duplicates := 0
	var merged []vectorstore.ChunkInput

	for _, sourceReleaseID := range in.SourceReleaseIDs {
		rows, err := s.VectorStore.ReadAll(in.Domain, sourceReleaseID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if seen[row.ChunkID] {
				duplicates++
				continue
			}
			seen[row.ChunkID] = true

			newEmbeddingRef, err := s.copyEmbeddingFile(row.EmbeddingRef, in.Domain, sourceReleaseID, target, row.ChunkID)
			if err != nil {
				return nil, err
			}
			if err := s.copyChunkFile(in.Domain, sourceReleaseID, target, row.ChunkID); err != nil {
				return nil, err
			}

			merged = append(merged, vectorstore.ChunkInput{
				ChunkID: row.ChunkID, Domain: in.Domain, ReleaseID: target, Text: row.Text,
				EmbeddingRef: newEmbeddingRef, ConceptID: row.ConceptID, Level: row.Level,
				GraphID: row.GraphID, GraphVersion: row.GraphVersion,
				DatasetVersion: row.DatasetVersion, IndexVersion: row.IndexVersion,
			})
		}
	}

	if s.Pipeline != nil && s.Pipeline.Lock != nil {
		unlock, err := s.Pipeline.Lock.Lock(ctx, in.Domain, target)
		if err != nil {
			return nil, ingesterr.NewBackend("batch.merge.lock", err)
		}
		defer unlock()
	}

	if len(merged) > 0 {
		if err := s.VectorStore.Upsert(in.Domain, target, merged); err != nil {
			return nil, err
		}
	}

	return &MergeResult{
		RowsWritten:       len(merged),
		DuplicatesSkipped: duplicates,
		SourceReleases:    in.SourceReleaseIDs,
		TargetReleaseID:   target,
	}, nil
}

func (s *Service) copyCanonicalObjects(domain string, sourceReleaseIDs []string, target string) error {
	destDir := filepath.Join(s.CanonicalRoot, domain, target)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ingesterr.NewBackend("batch.merge.mkdir_canonical", err)
	}
	for _, sourceReleaseID := range sourceReleaseIDs {
		srcDir := filepath.Join(s.CanonicalRoot, domain, sourceReleaseID)
		entries, err := os.ReadDir(srcDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return ingesterr.NewBackend("batch.merge.read_canonical_dir", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			destPath := filepath.Join(destDir, e.Name())
			if _, err := os.Stat(destPath); err == nil {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
			if err != nil {
				return ingesterr.NewBackend("batch.merge.read_canonical_object", err)
			}
			var obj canonical.Object
			if err := json.Unmarshal(raw, &obj); err != nil {
				return ingesterr.NewIntegrity(fmt.Sprintf("merge: invalid canonical object %s: %v", e.Name(), err))
			}
			obj.Domain = domain
			obj.Provenance.ReleaseID = target
			b, err := json.MarshalIndent(obj, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(destPath, b, 0o644); err != nil {
				return ingesterr.NewBackend("batch.merge.write_canonical_object", err)
			}
		}
	}
	return nil
}

func (s *Service) copyChunkFile(domain, sourceReleaseID, target, chunkID string) error {
	srcPath := filepath.Join(s.ChunksRoot, domain, sourceReleaseID, chunkID+".json")
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return ingesterr.NewIntegrity(fmt.Sprintf("merge: missing chunk file for %s: %v", chunkID, err))
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ingesterr.NewIntegrity(fmt.Sprintf("merge: invalid chunk file for %s: %v", chunkID, err))
	}
	payload["domain"] = domain
	payload["release_id"] = target

	destDir := filepath.Join(s.ChunksRoot, domain, target)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ingesterr.NewBackend("batch.merge.mkdir_chunk", err)
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, chunkID+".json"), b, 0o644)
}

func (s *Service) copyEmbeddingFile(embeddingRef, domain, sourceReleaseID, target, chunkID string) (string, error) {
	if !strings.HasPrefix(embeddingRef, "file:") {
		return "", ingesterr.NewIntegrity(fmt.Sprintf("merge: unsupported embedding_ref scheme for %s", chunkID))
	}
	srcPath := strings.TrimPrefix(embeddingRef, "file:")
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return "", ingesterr.NewIntegrity(fmt.Sprintf("merge: missing embedding file for %s: %v", chunkID, err))
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", ingesterr.NewIntegrity(fmt.Sprintf("merge: invalid embedding file for %s: %v", chunkID, err))
	}
	payload["domain"] = domain
	payload["release_id"] = target

	destDir := filepath.Join(s.EmbeddingsRoot, domain, target)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", ingesterr.NewBackend("batch.merge.mkdir_embedding", err)
	}
	destName := filepath.Base(srcPath)
	destPath := filepath.Join(destDir, destName)
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, b, 0o644); err != nil {
		return "", ingesterr.NewBackend("batch.merge.write_embedding", err)
	}
	return "file:" + filepath.ToSlash(destPath), nil
}
