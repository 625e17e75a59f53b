// Package digest computes content digests and keeps the bidirectional
// path/digest index a deploy manifest is built from.
package digest

import (
	"crypto/sha1" //nolint:gosec // the Deploy Service keys files by SHA-1
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm names a digest function. Every digest in one deploy uses the same one.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

const DefaultAlgorithm = SHA1

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", SHA1:
		return SHA1, nil
	case SHA256:
		return SHA256, nil
	}
	return "", fmt.Errorf("unsupported digest algorithm %q", s)
}

func (a Algorithm) newHash() hash.Hash {
	if a == SHA256 {
		return sha256.New()
	}
	return sha1.New() //nolint:gosec
}

// HexLen is the length of a digest string produced by a.
func (a Algorithm) HexLen() int {
	return a.newHash().Size() * 2
}

// Valid reports whether s looks like a lowercase hex digest of a.
func (a Algorithm) Valid(s string) bool {
	if len(s) != a.HexLen() {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Sum digests an in-memory byte slice.
func (a Algorithm) Sum(data []byte) string {
	h := a.newHash()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Reader digests everything r yields. Equal byte streams give equal digests
// regardless of where they came from.
func (a Algorithm) Reader(r io.Reader) (string, error) {
	h := a.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
