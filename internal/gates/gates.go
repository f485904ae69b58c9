// Package gates implements offline, idempotent validation of the artifacts
// produced by the pipeline: release records, the canonical store, the chunk
// store, and the vector index. Gates never mutate anything; they report.
package gates

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/gates/schema"
)

// Issue reports one gating violation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Roots bundles the artifact tree locations gates inspects.
type Roots struct {
	ReleasesRoot    string
	CanonicalRoot   string
	ChunksRoot      string
	EmbeddingsRoot  string
	VectorRoot      string
}

func readJSON(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func walkFiles(root, pattern string) []string {
	var out []string
	if _, err := os.Stat(root); err != nil {
		return nil
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func domainReleaseFromPath(root, path string) (domain, releaseID string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// CheckReleaseRecords validates every release.json and the active-release
// pointer consistency for each domain.
func CheckReleaseRecords(releasesRoot string) []Issue {
	var issues []Issue
	for _, p := range walkFiles(releasesRoot, "release.json") {
		payload, err := readJSON(p)
		if err != nil {
			issues = append(issues, Issue{"release_json_invalid", fmt.Sprintf("could not parse JSON: %v", err), p})
			continue
		}
		if err := schema.Validate("release.json", payload); err != nil {
			issues = append(issues, Issue{"release_schema_invalid", fmt.Sprintf("schema validation failed: %v", err), p})
		}
		rel, err := filepath.Rel(releasesRoot, p)
		if err == nil {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if len(parts) >= 4 && parts[1] == "releases" {
				domainFromPath, ridFromPath := parts[0], parts[2]
				if asString(payload["domain"]) != domainFromPath {
					issues = append(issues, Issue{"release_domain_mismatch", "release record domain does not match path", p})
				}
				if asString(payload["release_id"]) != ridFromPath {
					issues = append(issues, Issue{"release_id_mismatch", "release record release_id does not match path", p})
				}
			}
		}
	}

	entries, err := os.ReadDir(releasesRoot)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			activePath := filepath.Join(releasesRoot, e.Name(), "active_release.txt")
			raw, err := os.ReadFile(activePath)
			if err != nil {
				continue
			}
			active := strings.TrimSpace(string(raw))
			if active == "" {
				issues = append(issues, Issue{"active_release_empty", "active_release.txt is empty", activePath})
				continue
			}
			expected := filepath.Join(releasesRoot, e.Name(), "releases", active, "release.json")
			if _, err := os.Stat(expected); err != nil {
				issues = append(issues, Issue{"active_release_missing", "active_release.txt points to a missing release.json", activePath})
			}
		}
	}
	return issues
}

// CheckCanonicalStore validates every persisted canonical object.
func CheckCanonicalStore(canonicalRoot string) []Issue {
	var issues []Issue
	for _, p := range walkFiles(canonicalRoot, "*.json") {
		payload, err := readJSON(p)
		if err != nil {
			issues = append(issues, Issue{"canonical_json_invalid", fmt.Sprintf("could not parse JSON: %v", err), p})
			continue
		}
		if err := schema.Validate("canonical_object.json", payload); err != nil {
			issues = append(issues, Issue{"canonical_schema_invalid", fmt.Sprintf("schema validation failed: %v", err), p})
		}
		domainFromPath, ridFromPath := domainReleaseFromPath(canonicalRoot, p)
		if domainFromPath != "" && asString(payload["domain"]) != domainFromPath {
			issues = append(issues, Issue{"canonical_domain_mismatch", "canonical domain does not match path", p})
		}
		if prov, ok := payload["provenance"].(map[string]any); ok {
			if ridFromPath != "" && asString(prov["release_id"]) != "" && asString(prov["release_id"]) != ridFromPath {
				issues = append(issues, Issue{"canonical_release_mismatch", "canonical provenance.release_id does not match path", p})
			}
		}
	}
	return issues
}

// CheckChunkStore validates every persisted chunk.
func CheckChunkStore(chunksRoot string) []Issue {
	var issues []Issue
	for _, p := range walkFiles(chunksRoot, "*.json") {
		payload, err := readJSON(p)
		if err != nil {
			issues = append(issues, Issue{"chunk_json_invalid", fmt.Sprintf("could not parse JSON: %v", err), p})
			continue
		}
		if err := schema.Validate("chunk.json", payload); err != nil {
			issues = append(issues, Issue{"chunk_schema_invalid", fmt.Sprintf("schema validation failed: %v", err), p})
		}
		domainFromPath, ridFromPath := domainReleaseFromPath(chunksRoot, p)
		if domainFromPath != "" && asString(payload["domain"]) != domainFromPath {
			issues = append(issues, Issue{"chunk_domain_mismatch", "chunk domain does not match path", p})
		}
		if ridFromPath != "" && asString(payload["release_id"]) != ridFromPath {
			issues = append(issues, Issue{"chunk_release_mismatch", "chunk release_id does not match path", p})
		}
		stem := strings.TrimSuffix(filepath.Base(p), ".json")
		if asString(payload["chunk_id"]) != stem {
			issues = append(issues, Issue{"chunk_id_mismatch", "chunk chunk_id does not match filename", p})
		}
	}
	return issues
}

// CheckVectorIndex validates every index.jsonl row and its referenced chunk
// and embedding files.
func CheckVectorIndex(vectorRoot, chunksRoot, embeddingsRoot string) []Issue {
	var issues []Issue
	for _, indexPath := range walkFiles(vectorRoot, "index.jsonl") {
		domainFromPath, ridFromPath := domainReleaseFromPath(vectorRoot, indexPath)
		raw, err := os.ReadFile(indexPath)
		if err != nil {
			issues = append(issues, Issue{"index_read_failed", fmt.Sprintf("could not read index.jsonl: %v", err), indexPath})
			continue
		}
		lines := strings.Split(string(raw), "\n")
		for i, line := range lines {
			lineNo := i + 1
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				issues = append(issues, Issue{"index_row_invalid", fmt.Sprintf("line %d: JSON parse failed: %v", lineNo, err), indexPath})
				continue
			}
			chunkID := asString(row["chunk_id"])
			rowDomain := asString(row["domain"])
			rowRID := asString(row["release_id"])
			if domainFromPath != "" && rowDomain != domainFromPath {
				issues = append(issues, Issue{"index_domain_mismatch", fmt.Sprintf("line %d: domain mismatch", lineNo), indexPath})
			}
			if ridFromPath != "" && rowRID != ridFromPath {
				issues = append(issues, Issue{"index_release_mismatch", fmt.Sprintf("line %d: release_id mismatch", lineNo), indexPath})
			}
			if chunkID == "" {
				issues = append(issues, Issue{"index_missing_chunk_id", fmt.Sprintf("line %d: missing chunk_id", lineNo), indexPath})
				continue
			}

			chPath := filepath.Join(chunksRoot, rowDomain, rowRID, chunkID+".json")
			if _, err := os.Stat(chPath); err != nil {
				issues = append(issues, Issue{"index_missing_chunk_file", fmt.Sprintf("line %d: missing chunk file", lineNo), chPath})
			} else if chPayload, err := readJSON(chPath); err != nil {
				issues = append(issues, Issue{"index_chunk_invalid", fmt.Sprintf("line %d: chunk file invalid: %v", lineNo, err), chPath})
			} else if err := schema.Validate("chunk.json", chPayload); err != nil {
				issues = append(issues, Issue{"index_chunk_invalid", fmt.Sprintf("line %d: chunk file invalid: %v", lineNo, err), chPath})
			}

			embRef := asString(row["embedding_ref"])
			if !strings.HasPrefix(embRef, "file:") {
				issues = append(issues, Issue{"index_embedding_ref_invalid", fmt.Sprintf("line %d: unsupported embedding_ref", lineNo), indexPath})
				continue
			}
			embPath := strings.TrimPrefix(embRef, "file:")
			embPayload, err := readJSON(embPath)
			if err != nil {
				issues = append(issues, Issue{"index_missing_embedding", fmt.Sprintf("line %d: embedding file missing or invalid", lineNo), embPath})
				continue
			}
			if asString(embPayload["chunk_id"]) != chunkID {
				issues = append(issues, Issue{"embedding_chunk_id_mismatch", fmt.Sprintf("line %d: embedding chunk_id mismatch", lineNo), embPath})
			}
			if asString(embPayload["domain"]) != rowDomain {
				issues = append(issues, Issue{"embedding_domain_mismatch", fmt.Sprintf("line %d: embedding domain mismatch", lineNo), embPath})
			}
			if asString(embPayload["release_id"]) != rowRID {
				issues = append(issues, Issue{"embedding_release_id_mismatch", fmt.Sprintf("line %d: embedding release_id mismatch", lineNo), embPath})
			}
			if vec, ok := embPayload["vector"].([]any); !ok || len(vec) == 0 {
				issues = append(issues, Issue{"embedding_vector_invalid", fmt.Sprintf("line %d: embedding vector invalid", lineNo), embPath})
			}
			absEmb, err1 := filepath.Abs(embPath)
			absRoot, err2 := filepath.Abs(embeddingsRoot)
			if err1 != nil || err2 != nil || !strings.HasPrefix(absEmb, absRoot) {
				issues = append(issues, Issue{"embedding_outside_root", fmt.Sprintf("line %d: embedding file not under embeddings root", lineNo), embPath})
			}
		}
	}
	return issues
}

// RunAll runs every gate and concatenates the issues.
func RunAll(roots Roots) []Issue {
	var issues []Issue
	issues = append(issues, CheckReleaseRecords(roots.ReleasesRoot)...)
	issues = append(issues, CheckCanonicalStore(roots.CanonicalRoot)...)
	issues = append(issues, CheckChunkStore(roots.ChunksRoot)...)
	issues = append(issues, CheckVectorIndex(roots.VectorRoot, roots.ChunksRoot, roots.EmbeddingsRoot)...)
	return issues
}
