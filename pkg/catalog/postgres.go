package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	pgTablesQuery = `SELECT c.relname, obj_description(c.oid, 'pg_class')
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'p')
ORDER BY c.relname`

	pgColumnsQuery = `SELECT c.relname, a.attname, a.attnum, format_type(a.atttypid, a.atttypmod), NOT a.attnotnull, col_description(c.oid, a.attnum)
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'p') AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY c.relname, a.attnum`

	pgTableCommentQuery = `SELECT obj_description(c.oid, 'pg_class')
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`

	pgColumnCommentQuery = `SELECT col_description(c.oid, a.attnum)
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND a.attname = $3 AND NOT a.attisdropped`
)

// Postgres reads entries from pg_catalog and stores annotations as
// COMMENT ON TABLE / COMMENT ON COLUMN.
type Postgres struct {
	db     *sql.DB
	schema string
}

// NewPostgres creates a catalog over one schema ("public" if empty).
func NewPostgres(db *sql.DB, schema string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{db: db, schema: schema}
}

func (p *Postgres) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	rows, err := p.db.QueryContext(ctx, pgTablesQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	ordinal := 0
	for rows.Next() {
		var name string
		var comment sql.NullString
		if err := rows.Scan(&name, &comment); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		ordinal++
		entries = append(entries, Entry{
			Name:       name,
			Kind:       KindTable,
			Annotation: nullString(comment),
			Ordinal:    ordinal,
		})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list tables: %w", err)
	}
	_ = rows.Close()

	rows, err = p.db.QueryContext(ctx, pgColumnsQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var table, column, dataType string
		var attnum int
		var nullable bool
		var comment sql.NullString
		if err := rows.Scan(&table, &column, &attnum, &dataType, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		entries = append(entries, Entry{
			Name:       column,
			Kind:       KindColumn,
			Parent:     table,
			Annotation: nullString(comment),
			Ordinal:    attnum,
			DataType:   dataType,
			Nullable:   nullable,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	Sort(entries)
	return entries, nil
}

func (p *Postgres) GetAnnotation(ctx context.Context, e Entry) (string, bool, error) {
	var row *sql.Row
	if e.Kind == KindColumn {
		row = p.db.QueryRowContext(ctx, pgColumnCommentQuery, p.schema, e.Parent, e.Name)
	} else {
		row = p.db.QueryRowContext(ctx, pgTableCommentQuery, p.schema, e.Name)
	}

	var comment sql.NullString
	err := row.Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %s", ErrEntryNotFound, e.Key())
	}
	if err != nil {
		return "", false, fmt.Errorf("read annotation %s: %w", e.Key(), err)
	}
	return comment.String, comment.Valid, nil
}

// SetAnnotation issues COMMENT ON. COMMENT takes no bind parameters, so
// identifiers and text are quoted by lib/pq.
func (p *Postgres) SetAnnotation(ctx context.Context, e Entry, text string) error {
	_, err := p.db.ExecContext(ctx, commentStatement(p.schema, e, text))
	if err != nil {
		return fmt.Errorf("write annotation %s: %w", e.Key(), err)
	}
	return nil
}

func commentStatement(schema string, e Entry, text string) string {
	target := pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(e.Name)
	object := "TABLE"
	if e.Kind == KindColumn {
		target = pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(e.Parent) + "." + pq.QuoteIdentifier(e.Name)
		object = "COLUMN"
	}
	return fmt.Sprintf("COMMENT ON %s %s IS %s", object, target, pq.QuoteLiteral(text))
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
