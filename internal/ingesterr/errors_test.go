package ingesterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorIsErrValidation(t *testing.T) {
	err := NewValidation("domain", "is required")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "domain: is required", err.Error())
}

func TestValidationErrorWithoutField(t *testing.T) {
	err := NewValidation("", "raw_html, raw_html_path, or capture_id is required")
	assert.Equal(t, "raw_html, raw_html_path, or capture_id is required", err.Error())
}

func TestNotFoundErrorIsErrNotFound(t *testing.T) {
	err := NewNotFound("release", "rel1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "release not found: rel1", err.Error())
}

func TestBackendErrorWrapsUnderlying(t *testing.T) {
	underlying := errors.New("disk full")
	err := NewBackend("write_chunk", underlying)
	assert.True(t, errors.Is(err, ErrBackend))
	assert.Contains(t, err.Error(), "disk full")
}

func TestIntegrityErrorIsErrIntegrity(t *testing.T) {
	err := NewIntegrity("signature mismatch")
	assert.True(t, errors.Is(err, ErrIntegrity))
	assert.Equal(t, "signature mismatch", err.Error())
}
