package dialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ddlStyle renders column definitions for one tabular dialect.
type ddlStyle struct {
	quote    func(string) string
	types    map[Role]string
	nullable func(string) string
	notNull  string
	suffix   func(d Descriptor) string
}

var ddlStyles = map[Dialect]ddlStyle{
	Relational: {
		quote: pq.QuoteIdentifier,
		types: map[Role]string{
			RoleSourceID:  "TEXT",
			RoleRecordID:  "TEXT",
			RoleApproval:  "BOOLEAN",
			RoleLink:      "TEXT",
			RoleSignature: "TEXT",
			RoleTimestamp: "TIMESTAMPTZ",
			RolePayload:   "JSONB",
		},
		nullable: func(t string) string { return t + " NULL" },
		notNull:  " NOT NULL",
		suffix: func(d Descriptor) string {
			return fmt.Sprintf(",\n    PRIMARY KEY (%s, %s)\n)",
				pq.QuoteIdentifier(d.Field(RoleSourceID)), pq.QuoteIdentifier(d.Field(RoleRecordID)))
		},
	},
	Columnar: {
		quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		types: map[Role]string{
			RoleSourceID:  "String",
			RoleRecordID:  "String",
			RoleApproval:  "Bool",
			RoleLink:      "String",
			RoleSignature: "String",
			RoleTimestamp: "DateTime64(9, 'UTC')",
			RolePayload:   "String",
		},
		nullable: func(t string) string { return "Nullable(" + t + ")" },
		suffix: func(d Descriptor) string {
			return fmt.Sprintf("\n)\nENGINE = MergeTree\nORDER BY (%s, %s)",
				d.Field(RoleTimestamp), d.Field(RoleSourceID))
		},
	},
}

// CreateStatement returns the statement a sink runs to create storage for
// records of dialect d under name: a CREATE TABLE for the tabular dialects,
// a createCollection command with a $jsonSchema validator for documents.
func CreateStatement(d Dialect, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("dialect: empty storage name")
	}
	desc, err := Describe(d)
	if err != nil {
		return "", err
	}
	if d == Document {
		return documentCollection(desc, name)
	}

	style := ddlStyles[d]
	cols := make([]string, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		typ := style.types[f.Role]
		switch {
		case f.Role == RoleLink:
			typ = style.nullable(typ)
		default:
			typ += style.notNull
		}
		cols = append(cols, fmt.Sprintf("    %s %s", style.quote(f.Name), typ))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s%s;",
		style.quote(name), strings.Join(cols, ",\n"), style.suffix(desc)), nil
}

var bsonTypes = map[Role]any{
	RoleSourceID:  "string",
	RoleRecordID:  "string",
	RoleApproval:  []any{"bool", "string"},
	RoleLink:      "string",
	RoleSignature: "string",
	RoleTimestamp: "string",
	RolePayload:   []any{"object", "array", "string", "number", "bool"},
}

func documentCollection(desc Descriptor, name string) (string, error) {
	props := make(map[string]any, len(desc.Fields))
	for _, f := range desc.Fields {
		props[f.Name] = map[string]any{"bsonType": bsonTypes[f.Role]}
	}
	cmd := map[string]any{
		"create": name,
		"validator": map[string]any{
			"$jsonSchema": map[string]any{
				"bsonType":   "object",
				"required":   desc.RequiredFields(),
				"properties": props,
			},
		},
	}
	b, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dialect: render collection: %w", err)
	}
	return string(b), nil
}
