package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

func TestStoreGetRoundtrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Store(context.Background(), "doc-1", strings.NewReader("raw bytes")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	reader, err := storage.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "raw bytes" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestStoreOverwritesExistingKey(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := storage.Store(context.Background(), "doc-1", strings.NewReader("first")); err != nil {
		t.Fatalf("first Store() error = %v", err)
	}
	if err := storage.Store(context.Background(), "doc-1", strings.NewReader("second")); err != nil {
		t.Fatalf("second Store() error = %v", err)
	}

	reader, err := storage.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer reader.Close()
	raw, _ := io.ReadAll(reader)
	if string(raw) != "second" {
		t.Fatalf("expected overwrite, got %q", raw)
	}
}

func TestStoreLeavesNoTempFileOnReadFailure(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	failing := io.MultiReader(bytes.NewReader([]byte("partial")), &failingReader{})
	err = storage.Store(context.Background(), "doc-1", failing)
	if !domain.IsKind(err, domain.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "doc-1")); !os.IsNotExist(err) {
		t.Fatalf("partial object published")
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
