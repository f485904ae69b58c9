// Package canonical turns kept DistilledSections into
// CanonicalLearningObjects with deterministic ids and provenance, optionally
// persisting them under <canonical_root>/<domain>/<release_id>/<clo_id>.json.
package canonical

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/distiller"
	"github.com/tas-ingestion/ingestion/internal/idutil"
)

// Provenance records where a CanonicalLearningObject came from.
type Provenance struct {
	SourceID  string `json:"source_id"`
	ReleaseID string `json:"release_id"`
}

// Object is a CanonicalLearningObject.
type Object struct {
	ID              string     `json:"id"`
	Domain          string     `json:"domain"`
	Title           string     `json:"title"`
	Body            []string   `json:"body"`
	Concepts        []string   `json:"concepts"`
	Provenance      Provenance `json:"provenance"`
	ConceptID       string     `json:"concept_id,omitempty"`
	Level           string     `json:"level,omitempty"`
	GraphID         string     `json:"graph_id,omitempty"`
	GraphVersion    string     `json:"graph_version,omitempty"`
	DatasetVersion  string     `json:"dataset_version,omitempty"`
	IndexVersion    string     `json:"index_version,omitempty"`
}

func titleFromSection(sec distiller.Section) string {
	if strings.TrimSpace(sec.Title) != "" {
		return strings.TrimSpace(sec.Title)
	}
	for _, line := range strings.Split(sec.CleanText, "\n") {
		if strings.TrimSpace(line) != "" {
			t := strings.TrimSpace(line)
			if len(t) > 120 {
				t = t[:120]
			}
			return t
		}
	}
	return "Untitled"
}

func bodyFromCleanText(cleanText string) []string {
	var out []string
	for _, p := range strings.Split(cleanText, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Options controls optional persistence and enrichment for Canonicalize.
type Options struct {
	StorageRoot string
	Persist     bool
	// Enrich, when non-nil, is applied per-CLO after its body is built and
	// before it is persisted, so that optional graph metadata fields get
	// propagated into chunks downstream.
	Enrich func(Object) Object
}

// Canonicalize converts kept sections into CanonicalLearningObjects, ordered
// by section_id for determinism, matching across repeated runs on the same
// input set.
func Canonicalize(sections []distiller.Section, domain, sourceID, releaseID string, opts Options) ([]Object, error) {
	ordered := append([]distiller.Section(nil), sections...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SectionID < ordered[j].SectionID })

	var out []Object
	for _, sec := range ordered {
		cloID := idutil.CanonicalID(domain, releaseID, sourceID, sec.SectionID)
		obj := Object{
			ID:     cloID,
			Domain: domain,
			Title:  titleFromSection(sec),
			Body:   bodyFromCleanText(sec.CleanText),
			Concepts: []string{},
			Provenance: Provenance{
				SourceID:  sourceID,
				ReleaseID: releaseID,
			},
		}
		if opts.Enrich != nil {
			obj = opts.Enrich(obj)
		}
		out = append(out, obj)

		if opts.Persist {
			destDir := filepath.Join(opts.StorageRoot, domain, releaseID)
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return nil, err
			}
			b, err := json.MarshalIndent(obj, "", "  ")
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(filepath.Join(destDir, obj.ID+".json"), b, 0o644); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
