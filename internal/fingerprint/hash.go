package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Hasher computes a provenance hash over the raw bytes of an import batch.
// It is optional: callers that have none simply omit the hash.
type Hasher interface {
	Hash(content []byte) (string, error)
}

// SHA256Hasher hashes batch content with SHA-256 after normalizing line
// endings, so the same file checked out on different platforms hashes equal.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty content")
	}
	normalized := strings.ReplaceAll(string(content), "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum), nil
}
