package dialect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/doctrine/pkg/envelope"
)

// Record is a dialect-shaped envelope. Its JSON form uses the field names
// and order of the dialect's Descriptor.
type Record struct {
	Dialect   Dialect
	SourceID  string
	RecordID  string
	Approval  Approval
	Link      *string
	Signature string
	Timestamp time.Time
	Payload   envelope.Payload
}

// TimestampString renders the timestamp as ISO-8601 in UTC.
func (r *Record) TimestampString() string {
	return r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Field is one rendered name/value pair.
type Field struct {
	Name  string
	Value any
}

// Fields returns the record's fields in wire order. Unset optional links
// are left out; unset nullable links carry a nil value.
func (r *Record) Fields() ([]Field, error) {
	desc, err := Describe(r.Dialect)
	if err != nil {
		return nil, err
	}

	out := make([]Field, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		var v any
		switch f.Role {
		case RoleSourceID:
			v = r.SourceID
		case RoleRecordID:
			v = r.RecordID
		case RoleApproval:
			if r.Approval.IsPending() && !desc.PendingAllowed {
				return nil, fmt.Errorf("%w: %s cannot be pending", ErrMissingRequiredField, f.Name)
			}
			v = r.Approval
		case RoleLink:
			if r.Link == nil {
				if desc.LinkOptional {
					continue
				}
				v = nil
			} else {
				v = *r.Link
			}
		case RoleSignature:
			v = r.Signature
		case RoleTimestamp:
			v = r.TimestampString()
		case RolePayload:
			v = r.Payload
		}
		out = append(out, Field{Name: f.Name, Value: v})
	}
	return out, nil
}

// Encode renders the record as a JSON object in wire order. The payload is
// written verbatim.
func (r *Record) Encode() ([]byte, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var out bytes.Buffer
	out.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			out.WriteByte(',')
		}
		buf.Reset()
		if err := enc.Encode(f.Name); err != nil {
			return nil, err
		}
		out.Write(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
		out.WriteByte(':')

		if p, ok := f.Value.(envelope.Payload); ok {
			out.Write(p.Bytes())
			continue
		}
		buf.Reset()
		if err := enc.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("dialect: encode %s: %w", f.Name, err)
		}
		out.Write(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	}
	out.WriteByte('}')
	return out.Bytes(), nil
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return r.Encode()
}

// Map decodes the wire form into a generic map, the shape sinks that take
// documents (and the schema validator) expect.
func (r *Record) Map() (map[string]any, error) {
	b, err := r.Encode()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("dialect: decode record: %w", err)
	}
	return m, nil
}
