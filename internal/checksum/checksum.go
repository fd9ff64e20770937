// Package checksum computes content fingerprints for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLen is the length of the short fingerprint in hex characters.
const FingerprintLen = 12

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns a short deterministic digest of data, used to detect
// local edits since the last sync. It is a change signal, not a security
// boundary.
func Fingerprint(data []byte) string {
	return Sum(data)[:FingerprintLen]
}
