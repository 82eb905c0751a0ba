// Package envelope wraps application data in the doctrine's identity and
// lineage envelope before any dialect shaping happens.
package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidLineage is returned when provenance is incomplete.
	ErrInvalidLineage = errors.New("envelope: invalid lineage")
	// ErrMissingField is returned when a required envelope field is empty.
	ErrMissingField = errors.New("envelope: missing required field")
)

// Lineage records where an envelope came from. It is set once at build time.
type Lineage struct {
	AgentID       string `json:"agent_id"`
	BlueprintID   string `json:"blueprint_id"`
	SchemaVersion string `json:"schema_version"`
}

// Envelope is the dialect-neutral form of one logical record.
type Envelope struct {
	SourceID  string    `json:"source_id"`
	Subject   string    `json:"subject"`
	Payload   Payload   `json:"payload"`
	Lineage   Lineage   `json:"lineage"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the envelope invariants.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrMissingField)
	}
	switch {
	case e.SourceID == "":
		return fmt.Errorf("%w: source_id", ErrMissingField)
	case e.Subject == "":
		return fmt.Errorf("%w: subject", ErrMissingField)
	case e.Payload.IsZero():
		return fmt.Errorf("%w: payload", ErrMissingField)
	case e.Lineage.SchemaVersion == "":
		return fmt.Errorf("%w: schema_version is empty", ErrInvalidLineage)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at", ErrMissingField)
	}
	return nil
}

// Builder constructs envelopes. Its clock is the only source of
// created_at timestamps.
type Builder struct {
	clock  func() time.Time
	strict bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		b.clock = clock
	}
}

// WithStrictSchemaVersion requires lineage schema versions to be semantic
// versions.
func WithStrictSchemaVersion() Option {
	return func(b *Builder) {
		b.strict = true
	}
}

// NewBuilder creates a builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build wraps payload in a new envelope stamped with the current time.
func (b *Builder) Build(sourceID, subject string, payload Payload, lineage Lineage) (*Envelope, error) {
	if err := b.checkLineage(lineage); err != nil {
		return nil, err
	}
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source_id", ErrMissingField)
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: subject", ErrMissingField)
	}
	if payload.IsZero() {
		return nil, fmt.Errorf("%w: payload", ErrMissingField)
	}

	return &Envelope{
		SourceID: sourceID,
		Subject:  subject,
		// Payload bytes are private to the Payload value; copying the value
		// never aliases caller memory.
		Payload:   Payload{raw: payload.Bytes()},
		Lineage:   lineage,
		CreatedAt: b.clock().UTC(),
	}, nil
}

func (b *Builder) checkLineage(l Lineage) error {
	if l.SchemaVersion == "" {
		return fmt.Errorf("%w: schema_version is empty", ErrInvalidLineage)
	}
	if b.strict {
		if _, err := semver.StrictNewVersion(l.SchemaVersion); err != nil {
			return fmt.Errorf("%w: schema_version %q: %v", ErrInvalidLineage, l.SchemaVersion, err)
		}
	}
	return nil
}

// BuildValue canonicalizes a typed value and wraps it.
func BuildValue[T any](b *Builder, sourceID, subject string, value T, lineage Lineage) (*Envelope, error) {
	payload, err := PayloadOf(value)
	if err != nil {
		return nil, err
	}
	return b.Build(sourceID, subject, payload, lineage)
}

var defaultBuilder = NewBuilder()

// Build wraps payload using the wall clock.
func Build(sourceID, subject string, payload Payload, lineage Lineage) (*Envelope, error) {
	return defaultBuilder.Build(sourceID, subject, payload, lineage)
}
