package dialect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema returns the draft 2020-12 schema every record of this dialect
// satisfies.
func (d Descriptor) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		switch f.Role {
		case RoleSourceID, RoleRecordID, RoleSignature:
			props[f.Name] = map[string]any{"type": "string", "minLength": 1}
		case RoleApproval:
			if d.PendingAllowed {
				props[f.Name] = map[string]any{"oneOf": []any{
					map[string]any{"type": "boolean"},
					map[string]any{"const": pendingLiteral},
				}}
			} else {
				props[f.Name] = map[string]any{"type": "boolean"}
			}
		case RoleLink:
			if d.LinkOptional {
				props[f.Name] = map[string]any{"type": "string"}
			} else {
				props[f.Name] = map[string]any{"type": []any{"string", "null"}}
			}
		case RoleTimestamp:
			props[f.Name] = map[string]any{"type": "string", "format": "date-time"}
		case RolePayload:
			props[f.Name] = map[string]any{"not": map[string]any{"type": "null"}}
		}
	}

	required := make([]any, 0, len(d.Fields))
	for _, name := range d.RequiredFields() {
		required = append(required, name)
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"$id":                  schemaURL(d.Dialect),
		"title":                string(d.Dialect) + " record",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func schemaURL(d Dialect) string {
	return fmt.Sprintf("https://doctrine.schemas.local/dialect/%s.schema.json", d)
}

// ErrInvalidRecord is returned when a record does not match its dialect
// schema.
var ErrInvalidRecord = errors.New("dialect: record does not match schema")

var (
	schemaMu       sync.Mutex
	compiledSchema = make(map[Dialect]*jsonschema.Schema)
)

func compiled(d Dialect) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := compiledSchema[d]; ok {
		return s, nil
	}
	desc, err := Describe(d)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(desc.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("dialect: marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := schemaURL(d)
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("dialect: schema load failed: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("dialect: schema compile failed: %w", err)
	}
	compiledSchema[d] = s
	return s, nil
}

// Validate checks a rendered record against its dialect schema.
func Validate(r *Record) error {
	s, err := compiled(r.Dialect)
	if err != nil {
		return err
	}
	m, err := r.Map()
	if err != nil {
		return err
	}
	if err := s.Validate(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}
