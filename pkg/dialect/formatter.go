package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/doctrine/pkg/canonicalize"
	"github.com/Mindburn-Labs/doctrine/pkg/envelope"
)

// ErrMissingRequiredField is returned when an envelope cannot supply a
// field the target dialect requires. Envelopes from envelope.Builder never
// trigger it.
var ErrMissingRequiredField = errors.New("dialect: missing required field")

// Formatter maps envelopes onto dialect records.
type Formatter struct {
	signer Signer
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithSigner replaces the default CanonicalSigner.
func WithSigner(s Signer) FormatterOption {
	return func(f *Formatter) {
		f.signer = s
	}
}

// NewFormatter creates a formatter.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{signer: CanonicalSigner{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type formatOptions struct {
	approval *Approval
	link     *string
}

// FormatOption overrides a dialect default for one record.
type FormatOption func(*formatOptions)

// WithApproval sets the approval field instead of the dialect default.
func WithApproval(approved bool) FormatOption {
	return func(o *formatOptions) {
		a := Decided(approved)
		o.approval = &a
	}
}

// WithLink sets migrated_to / promoted_to / consolidated_from.
func WithLink(target string) FormatOption {
	return func(o *formatOptions) {
		o.link = &target
	}
}

// Format shapes env for dialect d. Envelope fields the dialect has no slot
// for are dropped; the payload is carried unchanged.
func (f *Formatter) Format(env *envelope.Envelope, d Dialect, opts ...FormatOption) (*Record, error) {
	desc, err := Describe(d)
	if err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingRequiredField, err)
	}

	var o formatOptions
	for _, opt := range opts {
		opt(&o)
	}

	sig, err := f.signer.Sign(desc.SignatureInputs(env.Lineage)...)
	if err != nil {
		return nil, err
	}

	approval := desc.DefaultApproval
	if o.approval != nil {
		approval = *o.approval
	}

	return &Record{
		Dialect:   d,
		SourceID:  env.SourceID,
		RecordID:  RecordID(env.Subject, env.SourceID),
		Approval:  approval,
		Link:      o.link,
		Signature: sig,
		Timestamp: env.CreatedAt.UTC(),
		Payload:   env.Payload,
	}, nil
}

var defaultFormatter = NewFormatter()

// FormatFor shapes env for dialect d with the default signer.
func FormatFor(env *envelope.Envelope, d Dialect, opts ...FormatOption) (*Record, error) {
	return defaultFormatter.Format(env, d, opts...)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// RecordID derives task_id / process_id from the subject, suffixed with a
// short digest of subject and source so distinct sources never collide.
func RecordID(subject, sourceID string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(subject), "_"), "_")
	if slug == "" {
		slug = "record"
	}
	digest := canonicalize.HashBytes([]byte(subject + "\x00" + sourceID))
	return slug + "-" + digest[:12]
}
