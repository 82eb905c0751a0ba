package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/doctrine/pkg/catalog"
)

func annotated(text string) *string { return &text }

func table(name string, annotation *string) catalog.Entry {
	return catalog.Entry{Name: name, Kind: catalog.KindTable, Annotation: annotation}
}

func column(parent, name string, ordinal int, annotation *string) catalog.Entry {
	return catalog.Entry{Name: name, Kind: catalog.KindColumn, Parent: parent, Ordinal: ordinal, Annotation: annotation, DataType: "text"}
}

func ruleByID(t *testing.T, id string) Rule {
	t.Helper()
	for _, r := range Builtin() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no built-in rule %s", id)
	return Rule{}
}

func TestBuiltin_Valid(t *testing.T) {
	rs := Builtin()
	require.Len(t, rs, 4)
	for _, r := range rs {
		assert.NoError(t, r.Validate(), r.ID)
	}
	assert.Equal(t, SeverityCritical, rs[0].Severity)
	assert.Equal(t, KindEnforcement, rs[1].Kind)
}

func TestTableAnnotationRule(t *testing.T) {
	entries := []catalog.Entry{
		table("orders", nil),
		table("users", annotated("Doctrine-governed table: Users")),
		table("audit", annotated("audit log")),
		column("users", "email", 1, nil),
	}

	out, err := ruleByID(t, TableAnnotationID).Evaluate(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users", "audit"}, out.Checked)
	require.Len(t, out.Findings, 2)
	assert.Equal(t, "orders", out.Findings[0].Entry.Name)
	assert.Equal(t, "table has no annotation", out.Findings[0].Detail)
	assert.Equal(t, "audit", out.Findings[1].Entry.Name)
}

func TestColumnAnnotationRule(t *testing.T) {
	entries := []catalog.Entry{
		table("users", nil),
		column("users", "id", 1, annotated("[0001] Id (bigint, not null)")),
		column("users", "email", 2, annotated("the email")),
		column("users", "name", 3, nil),
		column("users", "short", 4, annotated("[12] too short")),
	}

	out, err := ruleByID(t, ColumnAnnotationID).Evaluate(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, out.Checked, 4)
	require.Len(t, out.Findings, 3)
	assert.Equal(t, "users.email", out.Findings[0].Entry.Key())
}

func TestRequiredFieldsRule(t *testing.T) {
	entries := []catalog.Entry{
		table("steps", annotated("doctrine dialect:relational")),
		column("steps", "source_id", 1, nil),
		column("steps", "task_id", 2, nil),
		column("steps", "approved", 3, nil),
		table("docs", annotated("doctrine dialect: document")),
		table("graph", annotated("doctrine dialect:graph")),
		table("plain", annotated("doctrine")),
	}

	out, err := ruleByID(t, RequiredFieldsID).Evaluate(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, out.Checked, 3)
	require.Len(t, out.Findings, 3)

	assert.Equal(t, "steps", out.Findings[0].Entry.Name)
	assert.Contains(t, out.Findings[0].Detail, "migrated_to, process_signature, event_timestamp, data_payload")
	assert.NotContains(t, out.Findings[1].Detail, "promoted_to")
	assert.Contains(t, out.Findings[2].Detail, `unknown dialect "graph"`)
}

func TestIdentifierClaimsRule(t *testing.T) {
	entries := []catalog.Entry{
		table("users", annotated("doctrine hid:1.5.0.49.0")),
		table("orders", annotated("doctrine hid:3.1.0.0.0 and 2.5.0.0.0")),
		column("orders", "id", 1, nil),
	}

	out, err := ruleByID(t, IdentifierClaimsID).Evaluate(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, out.Checked, 3)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "orders", out.Findings[0].Entry.Name)
	assert.Contains(t, out.Findings[0].Detail, "3.1.0.0.0")
	assert.Contains(t, out.Findings[0].Detail, "2.5.0.0.0")
}

func TestDeclaredDialect(t *testing.T) {
	name, ok := DeclaredDialect("Doctrine table. Dialect:Columnar")
	assert.True(t, ok)
	assert.Equal(t, "columnar", name)

	_, ok = DeclaredDialect("no declaration")
	assert.False(t, ok)
}

func TestRuleViolation(t *testing.T) {
	r := ruleByID(t, ColumnAnnotationID)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	v := r.Violation(Finding{Entry: column("users", "email", 2, nil), Detail: "d"}, at)

	assert.Equal(t, "DOC-002", v.RuleID)
	assert.Equal(t, FamilyAnnotationPresence, v.Family)
	assert.Equal(t, SeverityHigh, v.Severity)
	assert.Equal(t, "users.email", v.EntryKey)
	assert.Equal(t, time.UTC, v.Timestamp.Location())
}

func TestRuleValidate(t *testing.T) {
	ok := ruleByID(t, TableAnnotationID)

	bad := ok
	bad.ID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = ok
	bad.Severity = "urgent"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = ok
	bad.Evaluate = nil
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.False(t, Severity("nope").Valid())
}

const customRules = `
version: "1.2.0"
disable: [DOC-004]
rules:
  - id: ORG-001
    name: No temporary columns
    family: naming
    severity: low
    applies_to: column
    violation_when: 'entry.name.startsWith("tmp_")'
    detail: temporary column left in schema
  - id: ORG-002
    name: Nullable text must be annotated
    family: annotation-presence
    severity: medium
    kind: validation
    applies_to: column
    violation_when: 'entry.nullable && !entry.has_annotation'
  - id: ORG-003
    family: naming
    severity: low
    violation_when: 'true'
    disabled: true
`

func TestLoadRules_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customRules), 0o600))

	rs, err := LoadRules(WithFile(path))
	require.NoError(t, err)

	var ids []string
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"DOC-001", "DOC-002", "DOC-003", "ORG-001", "ORG-002"}, ids)

	entries := []catalog.Entry{
		table("users", nil),
		column("users", "tmp_x", 1, annotated("[0001] x")),
		{Name: "note", Kind: catalog.KindColumn, Parent: "users", Ordinal: 2, Nullable: true},
	}

	out, err := rs[3].Evaluate(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, out.Checked, 2)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "temporary column left in schema", out.Findings[0].Detail)

	out, err = rs[4].Evaluate(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "users.note", out.Findings[0].Entry.Key())
	assert.Equal(t, KindValidation, rs[3].Kind)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := ParseFile([]byte("rules: []"))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ParseFile([]byte(`version: "2.0.0"`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ParseFile([]byte(`version: [`))
	assert.Error(t, err)

	f, err := ParseFile([]byte(`
version: "1.0"
rules:
  - id: BAD
    family: x
    severity: low
    violation_when: 'entry.name +'
`))
	require.NoError(t, err)
	_, err = LoadRules(WithParsedFile(f))
	assert.ErrorIs(t, err, ErrInvalidRule)

	f, err = ParseFile([]byte(`
version: "1.0"
rules:
  - id: DOC-001
    family: x
    severity: low
    violation_when: 'false'
`))
	require.NoError(t, err)
	_, err = LoadRules(WithParsedFile(f))
	assert.ErrorContains(t, err, "duplicate id DOC-001")

	_, err = LoadRules(WithDisabled("DOC-999"))
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = LoadRules(WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoadRules_NonBooleanExpression(t *testing.T) {
	f, err := ParseFile([]byte(`
version: "1.0"
rules:
  - id: ORG-010
    family: naming
    severity: low
    violation_when: 'entry.name'
`))
	require.NoError(t, err)
	rs, err := f.Compile()
	require.NoError(t, err)

	_, err = rs[0].Evaluate(context.Background(), []catalog.Entry{table("users", nil)})
	assert.ErrorContains(t, err, "want bool")
}

func TestLoadRules_Disabled(t *testing.T) {
	rs, err := LoadRules(WithDisabled(IdentifierClaimsID, RequiredFieldsID))
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, TableAnnotationID, rs[0].ID)
}
