package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReleaseOK(t *testing.T) {
	err := Validate("release.json", map[string]any{
		"release_id": "rel1", "domain": "docs", "created_at": "2026-07-31T00:00:00Z",
	})
	assert.NoError(t, err)
}

func TestValidateReleaseMissingField(t *testing.T) {
	err := Validate("release.json", map[string]any{"domain": "docs"})
	assert.Error(t, err)
}

func TestValidateCanonicalObjectOK(t *testing.T) {
	err := Validate("canonical_object.json", map[string]any{
		"id": "clo_" + repeatHex(24), "domain": "docs", "title": "t",
		"body": []any{"a"}, "concepts": []any{},
		"provenance": map[string]any{"source_id": "src1", "release_id": "rel1"},
	})
	assert.NoError(t, err)
}

func TestValidateCanonicalObjectBadID(t *testing.T) {
	err := Validate("canonical_object.json", map[string]any{
		"id": "not-a-valid-id", "domain": "docs", "title": "t",
		"body": []any{}, "concepts": []any{},
		"provenance": map[string]any{"source_id": "src1", "release_id": "rel1"},
	})
	assert.Error(t, err)
}

func TestValidateChunkOK(t *testing.T) {
	err := Validate("chunk.json", map[string]any{
		"chunk_id": "chk_" + repeatHex(24), "domain": "docs", "release_id": "rel1", "text": "hello",
	})
	assert.NoError(t, err)
}

func TestValidateChunkTextTooLong(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	err := Validate("chunk.json", map[string]any{
		"chunk_id": "chk_" + repeatHex(24), "domain": "docs", "release_id": "rel1", "text": string(long),
	})
	assert.Error(t, err)
}

func TestValidateUnknownSchema(t *testing.T) {
	err := Validate("nonexistent.json", map[string]any{})
	assert.Error(t, err)
}

func repeatHex(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = "0123456789abcdef"[i%16]
	}
	return string(out)
}
