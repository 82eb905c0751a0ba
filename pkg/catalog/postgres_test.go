package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_ListEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(pgTablesQuery)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"relname", "obj_description"}).
			AddRow("users", "doctrine table").
			AddRow("audit", nil))
	mock.ExpectQuery(regexp.QuoteMeta(pgColumnsQuery)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"relname", "attname", "attnum", "format_type", "nullable", "col_description"}).
			AddRow("audit", "at", 1, "timestamp with time zone", false, nil).
			AddRow("users", "email", 2, "text", true, "[0002] Email").
			AddRow("users", "id", 1, "bigint", false, nil))

	entries, err := NewPostgres(db, "").ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)

	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []string{"audit", "audit.at", "users", "users.id", "users.email"}, keys)

	assert.Nil(t, entries[0].Annotation)
	assert.Equal(t, "doctrine table", *entries[2].Annotation)
	assert.Equal(t, "text", entries[4].DataType)
	assert.True(t, entries[4].Nullable)
	assert.Equal(t, "[0002] Email", *entries[4].Annotation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListEntries_Unavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(pgTablesQuery)).
		WithArgs("ledger").
		WillReturnError(errors.New("connection refused"))

	_, err = NewPostgres(db, "ledger").ListEntries(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestPostgres_GetAnnotation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, "public")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(pgColumnCommentQuery)).
		WithArgs("public", "users", "email").
		WillReturnRows(sqlmock.NewRows([]string{"col_description"}).AddRow("[0002] Email"))
	text, ok, err := p.GetAnnotation(ctx, Entry{Name: "email", Kind: KindColumn, Parent: "users"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[0002] Email", text)

	mock.ExpectQuery(regexp.QuoteMeta(pgTableCommentQuery)).
		WithArgs("public", "users").
		WillReturnRows(sqlmock.NewRows([]string{"obj_description"}).AddRow(nil))
	_, ok, err = p.GetAnnotation(ctx, Entry{Name: "users", Kind: KindTable})
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(pgTableCommentQuery)).
		WithArgs("public", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"obj_description"}))
	_, _, err = p.GetAnnotation(ctx, Entry{Name: "ghost", Kind: KindTable})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetAnnotation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, "public")
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`COMMENT ON COLUMN "public"."users"."email" IS '[0002] Email (text, nullable)'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, p.SetAnnotation(ctx, Entry{Name: "email", Kind: KindColumn, Parent: "users"}, "[0002] Email (text, nullable)"))

	mock.ExpectExec(regexp.QuoteMeta(`COMMENT ON TABLE "public"."users" IS 'it''s doctrine'`)).
		WillReturnError(errors.New("permission denied"))
	err = p.SetAnnotation(ctx, Entry{Name: "users", Kind: KindTable}, "it's doctrine")
	assert.ErrorContains(t, err, "permission denied")

	assert.NoError(t, mock.ExpectationsWereMet())
}
