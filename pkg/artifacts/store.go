// Package artifacts persists compliance reports in content-addressed
// storage: the filesystem, S3, or GCS.
package artifacts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/doctrine/pkg/canonicalize"
)

// ErrNotFound means no artifact exists under the reference.
var ErrNotFound = errors.New("artifacts: not found")

// Store is content-addressed storage. References have the form
// "sha256:<hex>" over the stored bytes.
type Store interface {
	// Store persists data and returns its reference. Storing the same
	// bytes twice is a no-op.
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

const objectSuffix = ".json"

// parseRef validates a reference and returns its hex digest.
func parseRef(ref string) (string, error) {
	raw, ok := strings.CutPrefix(ref, canonicalize.HashPrefix)
	if !ok {
		return "", fmt.Errorf("invalid reference format: %s", ref)
	}
	if len(raw) != 64 {
		return "", fmt.Errorf("invalid reference length: %s", ref)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid reference hex: %w", err)
	}
	return raw, nil
}

// FileStore keeps artifacts as files under one directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: reports are meant to be shared
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw+objectSuffix)
}

func (s *FileStore) Store(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := canonicalize.PrefixedHash(data)
	path := s.path(strings.TrimPrefix(ref, canonicalize.HashPrefix))
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	// Write to temp, then rename.
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: reports are meant to be readable
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(raw))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}

func (s *FileStore) Exists(ctx context.Context, ref string) (bool, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(raw))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	raw, err := parseRef(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(raw)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
