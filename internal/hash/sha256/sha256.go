// Package sha256 fingerprints extracted records.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Hasher computes SHA-256 fingerprints of records.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Fingerprint returns rec's JSON encoding and the hex digest of it. Keys are
// encoded in sorted order, so equal records always share a digest.
func (h *Hasher) Fingerprint(rec crawler.Record) ([]byte, string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, "", fmt.Errorf("encode record %s: %w", rec.URL(), err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}
