package dialect

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Mindburn-Labs/doctrine/pkg/canonicalize"
)

// Signer derives the identity signature carried by every record. The
// algorithm only has to be deterministic and collision-resistant enough to
// keep signatures unique within a run.
type Signer interface {
	Sign(parts ...string) (string, error)
}

// CanonicalSigner hashes the RFC 8785 form of the parts with SHA-256.
type CanonicalSigner struct{}

func (CanonicalSigner) Sign(parts ...string) (string, error) {
	b, err := canonicalize.JCS(parts)
	if err != nil {
		return "", fmt.Errorf("dialect: sign: %w", err)
	}
	return canonicalize.HashBytes(b), nil
}

// XXHashSigner is a fast non-cryptographic signer for high-volume
// formatting where signatures are only compared within one run.
type XXHashSigner struct{}

func (XXHashSigner) Sign(parts ...string) (string, error) {
	b, err := canonicalize.JCS(parts)
	if err != nil {
		return "", fmt.Errorf("dialect: sign: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

// JoinSigner concatenates the parts verbatim. Readable, but two different
// part lists can produce the same signature if a part contains Sep.
type JoinSigner struct {
	Sep string
}

func (s JoinSigner) Sign(parts ...string) (string, error) {
	return strings.Join(parts, s.Sep), nil
}
