package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/doctrine/pkg/canonicalize"
)

// Payload is opaque application data carried by an Envelope. The core
// never decodes it; it only checks that it is well-formed JSON and hands the
// same bytes to every dialect.
type Payload struct {
	raw json.RawMessage
}

// NewPayload validates raw JSON and takes a compacted private copy of it.
// Compaction happens once here so every later serialization emits the same
// bytes.
func NewPayload(raw []byte) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Payload{}, fmt.Errorf("%w: payload is empty", ErrMissingField)
	}
	if !json.Valid(raw) {
		return Payload{}, fmt.Errorf("envelope: payload is not valid JSON")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Payload{}, fmt.Errorf("envelope: compact payload: %w", err)
	}
	if bytes.Equal(buf.Bytes(), []byte("null")) {
		return Payload{}, fmt.Errorf("%w: payload is null", ErrMissingField)
	}
	return Payload{raw: buf.Bytes()}, nil
}

// MustPayload is NewPayload for literals in tests and fixtures.
func MustPayload(raw string) Payload {
	p, err := NewPayload([]byte(raw))
	if err != nil {
		panic(err)
	}
	return p
}

// PayloadOf canonicalizes a typed value (RFC 8785) into a Payload.
func PayloadOf[T any](v T) (Payload, error) {
	b, err := canonicalize.JCS(v)
	if err != nil {
		return Payload{}, fmt.Errorf("envelope: encode payload: %w", err)
	}
	return NewPayload(b)
}

// Bytes returns a copy of the payload bytes.
func (p Payload) Bytes() []byte {
	return bytes.Clone(p.raw)
}

// IsZero reports whether the payload is absent.
func (p Payload) IsZero() bool {
	return len(p.raw) == 0
}

// Equal reports byte equality.
func (p Payload) Equal(other Payload) bool {
	return bytes.Equal(p.raw, other.raw)
}

func (p Payload) String() string {
	return string(p.raw)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return p.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = Payload{}
		return nil
	}
	decoded, err := NewPayload(b)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
