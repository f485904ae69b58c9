// Package integrity provides signed-checksum generation and verification for
// stored artifacts: HMAC-SHA256 over the content hash string, represented as
// "hmac-sha256:<hex>".
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
)

const insecureDevSecret = "dev-ingestion-signing-secret-CHANGE-IN-PRODUCTION"

var warnOnce sync.Once

// Signer signs and verifies content hashes with a configured (or dev-default)
// secret.
type Signer struct {
	secret string
}

// NewSigner builds a Signer. An empty secret falls back to an insecure dev
// default and emits a one-time warning, mirroring the source implementation's
// noisy dev fallback.
func NewSigner(secret string) *Signer {
	if secret == "" {
		warnOnce.Do(func() {
			log.Printf("[integrity] INGESTION_SIGNING_SECRET not set; using insecure dev default. Set INGESTION_SIGNING_SECRET in production.")
		})
		secret = insecureDevSecret
	}
	return &Signer{secret: secret}
}

// Sign returns an HMAC-SHA256 signature over contentHash.
func (s *Signer) Sign(contentHash string) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(contentHash))
	return "hmac-sha256:" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid signature of contentHash,
// using a constant-time comparison.
func (s *Signer) Verify(contentHash, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(contentHash)
	return hmac.Equal([]byte(expected), []byte(signature))
}
