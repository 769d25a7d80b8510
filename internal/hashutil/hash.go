// Package hashutil computes the two content hashes dupenukem uses to group
// and confirm duplicates: a fast 64-bit fingerprint for grouping, and a
// cryptographic digest for confirmation.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// blockSize is the read buffer size used when streaming a file into a
// hasher, matching the teacher's read-buffer sizing for whole-file hashing.
const blockSize = 64 * 1024

// FastFingerprint returns the XXH3-64 fingerprint of path's entire
// contents, used to group duplicate candidates and to key snapshot groups.
func FastFingerprint(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxh3.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// StrongDigest returns the lowercase hex SHA-256 digest of path's entire
// contents.
func StrongDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
