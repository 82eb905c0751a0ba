// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of envelopes, signatures and
// compliance reports.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// HashPrefix tags digests produced by this package.
const HashPrefix = "sha256:"

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is marshaled with encoding/json first so struct tags are honored, then
// transformed: object keys sorted by UTF-16 code units, numbers in ES6 form,
// no insignificant whitespace and no HTML escaping.
func JCS(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	return Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}

// Transform canonicalizes raw JSON text.
func Transform(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical form of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PrefixedHash is HashBytes tagged with HashPrefix, the form used for
// content-addressed report references.
func PrefixedHash(data []byte) string {
	return HashPrefix + HashBytes(data)
}
