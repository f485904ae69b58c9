// Package idutil builds the deterministic, content-addressed identifiers
// used across the pipeline (sections, canonical objects, chunks, embeddings).
package idutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const hashLen = 24

func sha256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func join(parts ...string) string {
	return strings.Join(parts, "|")
}

// SectionID derives sec_<sha256(domain|source_hash|kind|title|clean_text)[:24]>.
func SectionID(domain, sourceHash, kind, title, cleanText string) string {
	base := join(domain, sourceHash, kind, title, cleanText)
	return "sec_" + sha256Hex(base)[:hashLen]
}

// CanonicalID derives clo_<sha256(domain|release_id|source_id|section_id)[:24]>.
func CanonicalID(domain, releaseID, sourceID, sectionID string) string {
	base := join(domain, releaseID, sourceID, sectionID)
	return "clo_" + sha256Hex(base)[:hashLen]
}

// ChunkID derives chk_<sha256(domain|release_id|clo_id|chunk_index|text)[:24]>.
func ChunkID(domain, releaseID, cloID string, chunkIndex int, text string) string {
	base := join(domain, releaseID, cloID, strconv.Itoa(chunkIndex), text)
	return "chk_" + sha256Hex(base)[:hashLen]
}

// EmbeddingID derives emb_<sha256(vector_json)[:24]> where vector_json is the
// vector serialized as compact JSON (json.Marshal output, no whitespace); the
// persisted embedding files themselves are indented JSON.
func EmbeddingID(vectorJSON string) string {
	return "emb_" + sha256Hex(vectorJSON)[:hashLen]
}
