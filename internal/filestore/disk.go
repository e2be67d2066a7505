package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStorage writes originals under a single upload directory.
type DiskStorage struct {
	dir string
}

func NewDiskStorage(dir string) (*DiskStorage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", abs, err)
	}
	return &DiskStorage{dir: abs}, nil
}

func (d *DiskStorage) Save(ctx context.Context, documentID, filename, contentType string, data []byte) (SavedFile, error) {
	path := filepath.Join(d.dir, ObjectName(documentID, filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return SavedFile{}, fmt.Errorf("failed to write upload %s: %w", path, err)
	}
	return SavedFile{Location: path, Size: int64(len(data))}, nil
}

func (d *DiskStorage) ReadFile(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", location, err)
	}
	return data, nil
}
