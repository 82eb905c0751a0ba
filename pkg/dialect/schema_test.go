package dialect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_FormattedRecords(t *testing.T) {
	env := buildEnvelope(t, `{"x":{"y":[1,"two",null]}}`)

	for _, d := range Dialects() {
		rec, err := FormatFor(env, d)
		require.NoError(t, err)
		assert.NoError(t, Validate(rec), d)

		rec, err = FormatFor(env, d, WithApproval(true), WithLink("next"))
		require.NoError(t, err)
		assert.NoError(t, Validate(rec), d)
	}
}

func TestValidate_RejectsBrokenRecord(t *testing.T) {
	rec, err := FormatFor(buildEnvelope(t, `{}`), Relational)
	require.NoError(t, err)

	rec.Signature = ""
	assert.ErrorIs(t, Validate(rec), ErrInvalidRecord)
}

func TestRequiredFields(t *testing.T) {
	rel, err := Describe(Relational)
	require.NoError(t, err)
	assert.Contains(t, rel.RequiredFields(), "migrated_to")

	doc, err := Describe(Document)
	require.NoError(t, err)
	assert.NotContains(t, doc.RequiredFields(), "promoted_to")
	assert.Equal(t, "validated", doc.Field(RoleApproval))
	assert.Empty(t, doc.Field(Role(99)))
}

func TestCreateStatement_Relational(t *testing.T) {
	stmt, err := CreateStatement(Relational, "orchestration_steps")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stmt, `CREATE TABLE IF NOT EXISTS "orchestration_steps" (`))
	assert.Contains(t, stmt, `"approved" BOOLEAN NOT NULL`)
	assert.Contains(t, stmt, `"migrated_to" TEXT NULL`)
	assert.Contains(t, stmt, `"data_payload" JSONB NOT NULL`)
	assert.Contains(t, stmt, `PRIMARY KEY ("source_id", "task_id")`)
	assert.True(t, strings.HasSuffix(stmt, ");"))
}

func TestCreateStatement_Columnar(t *testing.T) {
	stmt, err := CreateStatement(Columnar, "knowledge")
	require.NoError(t, err)

	assert.Contains(t, stmt, "`consolidated_from` Nullable(String)")
	assert.Contains(t, stmt, "ENGINE = MergeTree")
}

func TestCreateStatement_Document(t *testing.T) {
	stmt, err := CreateStatement(Document, "steps")
	require.NoError(t, err)

	assert.Contains(t, stmt, `"create": "steps"`)
	assert.Contains(t, stmt, `"$jsonSchema"`)
	assert.Contains(t, stmt, `"timestamp_last_touched"`)
}

func TestCreateStatement_Errors(t *testing.T) {
	_, err := CreateStatement(Relational, " ")
	assert.Error(t, err)
	_, err = CreateStatement(Dialect("graph"), "x")
	assert.Error(t, err)
}

func TestSigners(t *testing.T) {
	a, err := CanonicalSigner{}.Sign("a1", "1.0.0")
	require.NoError(t, err)
	b, err := CanonicalSigner{}.Sign("a1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := CanonicalSigner{}.Sign("a11", ".0.0")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	x, err := XXHashSigner{}.Sign("a1", "1.0.0")
	require.NoError(t, err)
	assert.Len(t, x, 16)
}
