// Package catalog defines the schema-catalog capabilities the compliance
// engine consumes, and adapters for the stores it runs against.
//
// The engine takes no lock on the catalog. Concurrent external mutation
// during a scan is not detected; the last writer wins.
package catalog

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrCatalogUnavailable means the catalog could not be read at all.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
	// ErrEntryNotFound means the entry does not exist in the catalog.
	ErrEntryNotFound = errors.New("catalog: entry not found")
	// ErrReadOnly means the catalog does not accept writes.
	ErrReadOnly = errors.New("catalog: read-only")
)

// Kind distinguishes table-like from column-like entries.
type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// Entry is one unit of schema metadata.
type Entry struct {
	Name       string  `json:"name"`
	Kind       Kind    `json:"kind"`
	Parent     string  `json:"parent,omitempty"` // owning table, for columns
	Annotation *string `json:"annotation"`
	Ordinal    int     `json:"ordinal"`
	DataType   string  `json:"data_type,omitempty"`
	Nullable   bool    `json:"nullable,omitempty"`
}

// Key names the entry within its catalog: "table" or "table.column". A
// table whose name contains a dot can share its Key with a column, so
// stores index entries by kind and Key.
func (e Entry) Key() string {
	if e.Kind == KindColumn {
		return e.Parent + "." + e.Name
	}
	return e.Name
}

// storeKey is Key qualified by kind; anything not a column is a table.
func (e Entry) storeKey() string {
	if e.Kind == KindColumn {
		return string(KindColumn) + ":" + e.Key()
	}
	return string(KindTable) + ":" + e.Key()
}

// AnnotationText returns the annotation and whether one is set.
func (e Entry) AnnotationText() (string, bool) {
	if e.Annotation == nil {
		return "", false
	}
	return *e.Annotation, true
}

// WithAnnotation returns a copy of e carrying text.
func (e Entry) WithAnnotation(text string) Entry {
	e.Annotation = &text
	return e
}

// Reader lists entries and reads annotations.
type Reader interface {
	ListEntries(ctx context.Context) ([]Entry, error)
	GetAnnotation(ctx context.Context, e Entry) (string, bool, error)
}

// Writer stores annotations. Only the corrector writes.
type Writer interface {
	SetAnnotation(ctx context.Context, e Entry, text string) error
}

// ReadWriter is a catalog that can be both scanned and corrected.
type ReadWriter interface {
	Reader
	Writer
}

// Sort orders entries table by table: each table first, then its columns
// by ordinal. The order is total, so scans are reproducible regardless of
// the order an adapter returns rows in.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if ga, gb := group(a), group(b); ga != gb {
			return ga < gb
		}
		if a.Kind != b.Kind {
			return a.Kind == KindTable
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.Name < b.Name
	})
}

func group(e Entry) string {
	if e.Kind == KindColumn {
		return e.Parent
	}
	return e.Name
}
