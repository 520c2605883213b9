package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

// Storage is the byte-stream object store behind the §storage contract:
// store(bytes, key) and get(key). Write failures are surfaced as the
// retryable storage-failure kind; the orchestrator owns the retry bound.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/archive"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Store(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, filepath.Base(key))

	f, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailure, "create temp file", err)
	}
	tmpName := f.Name()

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailure, "write file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailure, "close file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailure, "publish file", err)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.basePath, filepath.Base(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
