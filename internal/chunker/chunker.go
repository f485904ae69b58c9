// Package chunker turns CanonicalLearningObjects into small, deterministic
// chunks suitable for embedding and indexing: sentence-aware splitting of
// oversized paragraphs followed by greedy packing into max_chars windows.
package chunker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tas-ingestion/ingestion/internal/canonical"
	"github.com/tas-ingestion/ingestion/internal/idutil"
)

// DefaultMaxChars is the default chunk size ceiling.
const DefaultMaxChars = 800

var sentenceSplitRE = regexp.MustCompile(`(?:[.!?])\s+`)

// Chunk is a packed slice of a canonical object's body.
type Chunk struct {
	ChunkID        string `json:"chunk_id"`
	Domain         string `json:"domain"`
	ReleaseID      string `json:"release_id"`
	Text           string `json:"text"`
	ConceptID      string `json:"concept_id,omitempty"`
	Level          string `json:"level,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	GraphVersion   string `json:"graph_version,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	IndexVersion   string `json:"index_version,omitempty"`
}

func splitLongParagraph(text string, maxChars int) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}
	if len(t) <= maxChars {
		return []string{t}
	}

	sentences := splitSentences(t)
	if len(sentences) <= 1 {
		return hardSlice(t, maxChars)
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	for _, s := range sentences {
		add := s
		if cur.Len() > 0 {
			add = " " + s
		}
		if cur.Len() > 0 && curLen+len(add) > maxChars {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			cur.WriteString(s)
			curLen = len(s)
		} else {
			cur.WriteString(add)
			curLen += len(add)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}

	var final []string
	for _, p := range parts {
		if len(p) <= maxChars {
			final = append(final, p)
		} else {
			final = append(final, hardSlice(p, maxChars)...)
		}
	}
	return final
}

// splitSentences finds sentence boundaries after ./!/? followed by
// whitespace, keeping the punctuation attached to the preceding sentence (the
// lookbehind the Python regex expresses with `(?<=[.!?])\s+`, reproduced here
// by splitting on the boundary match itself since Go's RE2 has no lookbehind).
func splitSentences(t string) []string {
	idxs := sentenceSplitRE.FindAllStringIndex(t, -1)
	if len(idxs) == 0 {
		return []string{strings.TrimSpace(t)}
	}
	var out []string
	prev := 0
	for _, m := range idxs {
		out = append(out, strings.TrimSpace(t[prev:m[0]+1]))
		prev = m[1]
	}
	out = append(out, strings.TrimSpace(t[prev:]))
	var filtered []string
	for _, s := range out {
		if s != "" {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func hardSlice(t string, maxChars int) []string {
	var out []string
	runes := []rune(t)
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		s := strings.TrimSpace(string(runes[i:end]))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ChunkObject packs a single CanonicalLearningObject's body paragraphs into
// chunks of at most maxChars characters, propagating its optional metadata
// fields onto every emitted chunk.
func ChunkObject(clo canonical.Object, domain, releaseID string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var units []string
	for _, p := range clo.Body {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		units = append(units, splitLongParagraph(p, maxChars)...)
	}

	var chunks []Chunk
	var cur []string
	curLen := 0
	chunkIndex := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(cur, "\n\n"))
		cur = nil
		curLen = 0
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ChunkID:        idutil.ChunkID(domain, releaseID, clo.ID, chunkIndex, text),
			Domain:         domain,
			ReleaseID:      releaseID,
			Text:           text,
			ConceptID:      clo.ConceptID,
			Level:          clo.Level,
			GraphID:        clo.GraphID,
			GraphVersion:   clo.GraphVersion,
			DatasetVersion: clo.DatasetVersion,
			IndexVersion:   clo.IndexVersion,
		})
		chunkIndex++
	}

	for _, u := range units {
		if u == "" {
			continue
		}
		addLen := len(u)
		if len(cur) > 0 {
			addLen += 2
		}
		if len(cur) > 0 && curLen+addLen > maxChars {
			flush()
		}
		cur = append(cur, u)
		curLen += addLen
	}
	flush()

	return chunks
}

// ChunkObjects chunks every object, ordered by CLO id for determinism.
func ChunkObjects(clos []canonical.Object, domain, releaseID string, maxChars int) []Chunk {
	ordered := append([]canonical.Object(nil), clos...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var out []Chunk
	for _, clo := range ordered {
		out = append(out, ChunkObject(clo, domain, releaseID, maxChars)...)
	}
	return out
}

// Persist writes each chunk to <storageRoot>/<domain>/<release_id>/<chunk_id>.json.
func Persist(chunks []Chunk, storageRoot string) ([]string, error) {
	var written []string
	for _, ch := range chunks {
		destDir := filepath.Join(storageRoot, ch.Domain, ch.ReleaseID)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, err
		}
		b, err := json.MarshalIndent(ch, "", "  ")
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(destDir, ch.ChunkID+".json")
		if err := os.WriteFile(dest, b, 0o644); err != nil {
			return nil, err
		}
		written = append(written, dest)
	}
	return written, nil
}
