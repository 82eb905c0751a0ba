// Package dialect shapes envelopes into the record layouts expected by the
// relational, document and columnar sinks.
//
// The three layouts differ only in field names, defaults and how an unset
// link is rendered, so a single formatter is driven by a Descriptor per
// dialect rather than three hand-written mappings.
package dialect

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/doctrine/pkg/envelope"
)

// Dialect identifies a target storage dialect.
type Dialect string

const (
	Relational Dialect = "relational"
	Document   Dialect = "document"
	Columnar   Dialect = "columnar"
)

// Dialects lists every supported dialect in a stable order.
func Dialects() []Dialect {
	return []Dialect{Relational, Document, Columnar}
}

// ParseDialect resolves a dialect name, case-insensitively.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := descriptors[d]; !ok {
		return "", fmt.Errorf("dialect: unknown dialect %q", s)
	}
	return d, nil
}

// Role is the meaning of a field independent of its dialect-specific name.
type Role int

const (
	RoleSourceID Role = iota
	RoleRecordID
	RoleApproval
	RoleLink
	RoleSignature
	RoleTimestamp
	RolePayload
)

// FieldSpec names one field of a dialect layout.
type FieldSpec struct {
	Name string
	Role Role
}

// Descriptor is everything that distinguishes one dialect from another.
type Descriptor struct {
	Dialect Dialect
	// Fields in wire order.
	Fields []FieldSpec
	// DefaultApproval applies when the caller supplies no override.
	DefaultApproval Approval
	// PendingAllowed reports whether the approval field accepts "pending".
	PendingAllowed bool
	// LinkOptional omits an unset link instead of rendering null.
	LinkOptional bool
	// SignatureInputs selects the lineage parts hashed into the signature.
	SignatureInputs func(envelope.Lineage) []string
}

// Field returns the dialect's name for a role.
func (d Descriptor) Field(role Role) string {
	for _, f := range d.Fields {
		if f.Role == role {
			return f.Name
		}
	}
	return ""
}

// RequiredFields lists the fields every record of this dialect carries.
func (d Descriptor) RequiredFields() []string {
	out := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Role == RoleLink && d.LinkOptional {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// FieldNames lists every field name in wire order.
func (d Descriptor) FieldNames() []string {
	out := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		out = append(out, f.Name)
	}
	return out
}

var descriptors = map[Dialect]Descriptor{
	// process_signature := agent_id, schema_version
	Relational: {
		Dialect: Relational,
		Fields: []FieldSpec{
			{"source_id", RoleSourceID},
			{"task_id", RoleRecordID},
			{"approved", RoleApproval},
			{"migrated_to", RoleLink},
			{"process_signature", RoleSignature},
			{"event_timestamp", RoleTimestamp},
			{"data_payload", RolePayload},
		},
		DefaultApproval: Decided(false),
		SignatureInputs: func(l envelope.Lineage) []string {
			return []string{l.AgentID, l.SchemaVersion}
		},
	},
	// execution_signature := agent_id, blueprint_id, schema_version
	Document: {
		Dialect: Document,
		Fields: []FieldSpec{
			{"source_id", RoleSourceID},
			{"process_id", RoleRecordID},
			{"validated", RoleApproval},
			{"promoted_to", RoleLink},
			{"execution_signature", RoleSignature},
			{"timestamp_last_touched", RoleTimestamp},
			{"payload", RolePayload},
		},
		DefaultApproval: Pending(),
		PendingAllowed:  true,
		LinkOptional:    true,
		SignatureInputs: func(l envelope.Lineage) []string {
			return []string{l.AgentID, l.BlueprintID, l.SchemaVersion}
		},
	},
	// knowledge_signature := blueprint_id, schema_version
	Columnar: {
		Dialect: Columnar,
		Fields: []FieldSpec{
			{"source_id", RoleSourceID},
			{"task_id", RoleRecordID},
			{"analytics_approved", RoleApproval},
			{"consolidated_from", RoleLink},
			{"knowledge_signature", RoleSignature},
			{"event_timestamp", RoleTimestamp},
			{"data_payload", RolePayload},
		},
		DefaultApproval: Decided(false),
		SignatureInputs: func(l envelope.Lineage) []string {
			return []string{l.BlueprintID, l.SchemaVersion}
		},
	},
}

// Describe returns the descriptor for d.
func Describe(d Dialect) (Descriptor, error) {
	desc, ok := descriptors[d]
	if !ok {
		return Descriptor{}, fmt.Errorf("dialect: unknown dialect %q", d)
	}
	return desc, nil
}
