// Package metadata provides integrity envelopes for stored blobs.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metadata verification errors.
var (
	ErrNoHashFound  = errors.New("no hash found in metadata")
	ErrHashMismatch = errors.New("hash mismatch")
)

// Metadata describes a stored blob.
type Metadata struct {
	StoredAt   time.Time `json:"stored_at"`
	Version    string    `json:"version"`
	Hash       string    `json:"hash"`
	Validation bool      `json:"validation"`
}

// CalculateHash computes the hex SHA-256 hash of blob.
func CalculateHash(blob []byte) string {
	hash := sha256.Sum256(blob)

	return hex.EncodeToString(hash[:])
}

// Sign returns fresh metadata for blob.
func Sign(blob []byte, version string, validated bool, storedAt time.Time) Metadata {
	return Metadata{
		StoredAt:   storedAt.UTC(),
		Version:    version,
		Hash:       CalculateHash(blob),
		Validation: validated,
	}
}

// Verify checks that blob matches the hash in meta.
func Verify(blob []byte, meta Metadata) error {
	if meta.Hash == "" {
		return ErrNoHashFound
	}

	calculated := CalculateHash(blob)
	if !strings.EqualFold(calculated, meta.Hash) {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.Hash, calculated)
	}

	return nil
}

// Expired reports whether the blob is older than ttl at now. A zero ttl never expires.
func (m Metadata) Expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(m.StoredAt) > ttl
}
