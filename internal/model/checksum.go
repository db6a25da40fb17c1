package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for checksums. The version suffix allows the algorithm to
// change without old and new checksums colliding.
const (
	DomainRecord = "tether/record/v1"
	DomainBlob   = "tether/blob/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum returns the change-detection checksum of a JSON payload.
//
// The payload is canonicalized first, so key order and insignificant
// whitespace do not affect the result. Not a security primitive.
func Checksum(data []byte) (string, error) {
	canonical, err := Canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustChecksum is like Checksum but panics on error.
// Use only in tests or when data is known to be valid JSON.
func MustChecksum(data []byte) string {
	sum, err := Checksum(data)
	if err != nil {
		panic(err)
	}
	return sum
}

// ContentIDPrefix marks a content id as a domain-separated SHA-256 digest.
const ContentIDPrefix = "sha256-"

// ContentID returns the content address of an opaque blob. Unlike Checksum
// the bytes are hashed as given.
func ContentID(data []byte) string {
	return ContentIDPrefix + hashWithDomain(DomainBlob, data)
}
