package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-process catalog, used for embedding and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry // by storeKey
	writes  int
}

// NewMemory creates a catalog holding entries.
func NewMemory(entries ...Entry) *Memory {
	m := &Memory{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		m.entries[e.storeKey()] = e
	}
	return m
}

// ReadMemoryFile loads a catalog snapshot: a JSON array of entries.
func ReadMemoryFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	return NewMemory(entries...), nil
}

// Put adds or replaces an entry.
func (m *Memory) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.storeKey()] = e
}

func (m *Memory) ListEntries(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, cloneEntry(e))
	}
	Sort(out)
	return out, nil
}

func (m *Memory) GetAnnotation(ctx context.Context, e Entry) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur, ok := m.entries[e.storeKey()]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrEntryNotFound, e.Key())
	}
	text, set := cur.AnnotationText()
	return text, set, nil
}

func (m *Memory) SetAnnotation(ctx context.Context, e Entry, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[e.storeKey()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, e.Key())
	}
	m.entries[e.storeKey()] = cur.WithAnnotation(text)
	m.writes++
	return nil
}

// Writes counts successful SetAnnotation calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func cloneEntry(e Entry) Entry {
	if e.Annotation != nil {
		text := *e.Annotation
		e.Annotation = &text
	}
	return e
}
