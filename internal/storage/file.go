package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the history blob to a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the blob. A missing file is not an error.
func (f *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, nil
}

// Save writes the blob through a temp file and rename so readers never see
// a partial write.
func (f *FileStore) Save(_ context.Context, blob []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(blob); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, f.path, err)
	}
	tmpPath = ""
	return nil
}
