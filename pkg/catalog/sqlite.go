package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// annotationsTable holds annotations; SQLite has no native comment storage.
const annotationsTable = "doctrine_annotations"

// SQLite reads entries from sqlite_master and pragma_table_info. Annotations
// live in a side table keyed by kind and Entry.Key.
type SQLite struct {
	db *sql.DB
}

// sqlitePragmas make a writer wait for the file lock instead of failing
// with SQLITE_BUSY.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// NewSQLite wraps db, creating the annotation table if needed. SQLite
// allows one writer at a time, so the handle is limited to a single
// connection and concurrent correctors queue on the pool.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLite(db)
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the underlying handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS doctrine_annotations (
		object_key TEXT PRIMARY KEY,
		annotation TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLite) ListEntries(ctx context.Context) ([]Entry, error) {
	annotations, err := s.annotations(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, table := range tables {
		e := Entry{Name: table, Kind: KindTable, Ordinal: i + 1}
		if text, ok := annotations[e.storeKey()]; ok {
			e = e.WithAnnotation(text)
		}
		entries = append(entries, e)

		columns, err := s.columns(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, c := range columns {
			if text, ok := annotations[c.storeKey()]; ok {
				c = c.WithAnnotation(text)
			}
			entries = append(entries, c)
		}
	}

	Sort(entries)
	return entries, nil
}

func (s *SQLite) tables(ctx context.Context) ([]string, error) {
	query := `
        SELECT name FROM sqlite_master
        WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> ?
        ORDER BY name
    `
	rows, err := s.db.QueryContext(ctx, query, annotationsTable)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) columns(ctx context.Context, table string) ([]Entry, error) {
	query := `SELECT cid, name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`
	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var cid, notNull int
		var name, dataType string
		if err := rows.Scan(&cid, &name, &dataType, &notNull); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, Entry{
			Name:     name,
			Kind:     KindColumn,
			Parent:   table,
			Ordinal:  cid + 1,
			DataType: dataType,
			Nullable: notNull == 0,
		})
	}
	return out, rows.Err()
}

func (s *SQLite) annotations(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT object_key, annotation FROM doctrine_annotations`)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out[key] = text
	}
	return out, rows.Err()
}

func (s *SQLite) GetAnnotation(ctx context.Context, e Entry) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT annotation FROM doctrine_annotations WHERE object_key = ?`, e.storeKey()).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read annotation %s: %w", e.Key(), err)
	}
	return text, true, nil
}

func (s *SQLite) SetAnnotation(ctx context.Context, e Entry, text string) error {
	query := `
        INSERT INTO doctrine_annotations (object_key, annotation, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(object_key) DO UPDATE SET annotation = excluded.annotation, updated_at = excluded.updated_at
    `
	if _, err := s.db.ExecContext(ctx, query, e.storeKey(), text, time.Now().UTC()); err != nil {
		return fmt.Errorf("write annotation %s: %w", e.Key(), err)
	}
	return nil
}
