// Package vectorstore is a domain- and release-scoped, file-backed vector
// index: <root>/<domain>/<release_id>/index.jsonl, one JSON object per chunk,
// keyed by chunk_id, queried by cosine similarity.
package vectorstore

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/ingesterr"
)

// FilterKeys are the recognized equality-filter keys on a query.
var FilterKeys = []string{"concept_id", "level", "graph_id", "graph_version", "dataset_version", "index_version"}

// Row is one indexed chunk.
type Row struct {
	ChunkID        string `json:"chunk_id"`
	Domain         string `json:"domain"`
	ReleaseID      string `json:"release_id"`
	Text           string `json:"text"`
	EmbeddingRef   string `json:"embedding_ref"`
	ConceptID      string `json:"concept_id,omitempty"`
	Level          string `json:"level,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	GraphVersion   string `json:"graph_version,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	IndexVersion   string `json:"index_version,omitempty"`
}

func (r Row) filterValue(key string) string {
	switch key {
	case "concept_id":
		return r.ConceptID
	case "level":
		return r.Level
	case "graph_id":
		return r.GraphID
	case "graph_version":
		return r.GraphVersion
	case "dataset_version":
		return r.DatasetVersion
	case "index_version":
		return r.IndexVersion
	}
	return ""
}

func matchesFilters(row Row, filters map[string]string) bool {
	for _, k := range FilterKeys {
		required, ok := filters[k]
		if !ok || strings.TrimSpace(required) == "" {
			continue
		}
		if row.filterValue(k) != strings.TrimSpace(required) {
			return false
		}
	}
	return true
}

// ScoredRow is a Row plus its cosine similarity score against a query.
type ScoredRow struct {
	Row
	Score float64 `json:"score"`
}

// ChunkInput is the minimal shape of a chunk the store upserts.
type ChunkInput struct {
	ChunkID        string
	Domain         string
	ReleaseID      string
	Text           string
	EmbeddingRef   string
	ConceptID      string
	Level          string
	GraphID        string
	GraphVersion   string
	DatasetVersion string
	IndexVersion   string
}

// Adapter is the pluggable vector store contract.
type Adapter interface {
	Upsert(domain, releaseID string, chunks []ChunkInput) error
	Query(domain, releaseID string, queryVector []float64, filters map[string]string, topK int) ([]ScoredRow, error)
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na <= 0.0 || nb <= 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func loadVectorFromRef(embeddingRef string) []float64 {
	if embeddingRef == "" || !strings.HasPrefix(embeddingRef, "file:") {
		return nil
	}
	path := strings.TrimPrefix(embeddingRef, "file:")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload struct {
		Vector []float64 `json:"vector"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload.Vector
}

// LocalJsonlStore is the default on-disk Adapter implementation.
type LocalJsonlStore struct {
	Root string
}

func NewLocalJsonlStore(root string) *LocalJsonlStore { return &LocalJsonlStore{Root: root} }

func (s *LocalJsonlStore) indexPath(domain, releaseID string) string {
	return filepath.Join(s.Root, domain, releaseID, "index.jsonl")
}

func readIndex(path string) (map[string]Row, error) {
	existing := map[string]Row{}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		if row.ChunkID != "" {
			existing[row.ChunkID] = row
		}
	}
	return existing, scanner.Err()
}

// Upsert validates chunk scope and deterministically rewrites the index,
// overwriting rows keyed by chunk_id and emitting lines sorted by chunk_id.
func (s *LocalJsonlStore) Upsert(domain, releaseID string, chunks []ChunkInput) error {
	if domain == "" {
		return ingesterr.NewValidation("domain", "domain is required")
	}
	if releaseID == "" {
		return ingesterr.NewValidation("release_id", "release_id is required")
	}
	for _, ch := range chunks {
		if ch.Domain != domain {
			return ingesterr.NewValidation("domain", "chunk domain does not match upsert domain")
		}
		if ch.ReleaseID != releaseID {
			return ingesterr.NewValidation("release_id", "chunk release_id does not match upsert release_id")
		}
		if ch.ChunkID == "" {
			return ingesterr.NewValidation("chunk_id", "chunk_id is required")
		}
		if ch.Text == "" {
			return ingesterr.NewValidation("text", "text is required")
		}
		if ch.EmbeddingRef == "" {
			return ingesterr.NewValidation("embedding_ref", "embedding_ref is required for indexing")
		}
	}

	path := s.indexPath(domain, releaseID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ingesterr.NewBackend("vectorstore.upsert.mkdir", err)
	}

	existing, err := readIndex(path)
	if err != nil {
		return ingesterr.NewBackend("vectorstore.upsert.read", err)
	}

	for _, ch := range chunks {
		existing[ch.ChunkID] = Row{
			ChunkID: ch.ChunkID, Domain: domain, ReleaseID: releaseID,
			Text: ch.Text, EmbeddingRef: ch.EmbeddingRef,
			ConceptID: ch.ConceptID, Level: ch.Level, GraphID: ch.GraphID,
			GraphVersion: ch.GraphVersion, DatasetVersion: ch.DatasetVersion,
			IndexVersion: ch.IndexVersion,
		}
	}

	keys := make([]string, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		b, err := json.Marshal(existing[k])
		if err != nil {
			return ingesterr.NewBackend("vectorstore.upsert.marshal", err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return ingesterr.NewBackend("vectorstore.upsert.write", err)
	}
	return nil
}

// Query returns the top-k rows by cosine similarity, sorted by (-score, chunk_id).
func (s *LocalJsonlStore) Query(domain, releaseID string, queryVector []float64, filters map[string]string, topK int) ([]ScoredRow, error) {
	if domain == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if releaseID == "" {
		return nil, ingesterr.NewValidation("release_id", "release_id is required")
	}
	if topK <= 0 {
		return nil, nil
	}

	existing, err := readIndex(s.indexPath(domain, releaseID))
	if err != nil {
		return nil, ingesterr.NewBackend("vectorstore.query.read", err)
	}

	var candidates []ScoredRow
	for _, row := range existing {
		if !matchesFilters(row, filters) {
			continue
		}
		vec := loadVectorFromRef(row.EmbeddingRef)
		candidates = append(candidates, ScoredRow{Row: row, Score: cosine(queryVector, vec)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// ReadAll returns every row of <root>/<domain>/<release_id>/index.jsonl,
// sorted by chunk_id, for callers (e.g. merge) that need the raw rows rather
// than a scored query.
func (s *LocalJsonlStore) ReadAll(domain, releaseID string) ([]Row, error) {
	if domain == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if releaseID == "" {
		return nil, ingesterr.NewValidation("release_id", "release_id is required")
	}
	existing, err := readIndex(s.indexPath(domain, releaseID))
	if err != nil {
		return nil, ingesterr.NewBackend("vectorstore.read_all.read", err)
	}
	rows := make([]Row, 0, len(existing))
	for _, row := range existing {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkID < rows[j].ChunkID })
	return rows, nil
}

// InMemoryIndex preloads vectors for repeated queries without re-reading
// embedding files on every call.
type InMemoryIndex struct {
	Domain    string
	ReleaseID string
	items     []itemWithVector
}

type itemWithVector struct {
	Row
	Vector []float64
}

// LoadInMemoryIndex reads <root>/<domain>/<release_id>/index.jsonl and every
// referenced vector once.
func LoadInMemoryIndex(root, domain, releaseID string) (*InMemoryIndex, error) {
	if domain == "" {
		return nil, ingesterr.NewValidation("domain", "domain is required")
	}
	if releaseID == "" {
		return nil, ingesterr.NewValidation("release_id", "release_id is required")
	}
	path := filepath.Join(root, domain, releaseID, "index.jsonl")
	existing, err := readIndex(path)
	if err != nil {
		return nil, ingesterr.NewBackend("vectorstore.load_in_memory.read", err)
	}
	idx := &InMemoryIndex{Domain: domain, ReleaseID: releaseID}
	for _, row := range existing {
		idx.items = append(idx.items, itemWithVector{Row: row, Vector: loadVectorFromRef(row.EmbeddingRef)})
	}
	return idx, nil
}

// Query scores the preloaded items against queryVector.
func (idx *InMemoryIndex) Query(queryVector []float64, filters map[string]string, topK int) []ScoredRow {
	if topK <= 0 {
		return nil
	}
	var candidates []ScoredRow
	for _, it := range idx.items {
		if !matchesFilters(it.Row, filters) {
			continue
		}
		candidates = append(candidates, ScoredRow{Row: it.Row, Score: cosine(queryVector, it.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}
