package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Object is a stored blob with its content type and metadata
type Object struct {
	Data        []byte            `json:"-"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ObjectStore archives rendered documents by key
type ObjectStore interface {
	PutObject(ctx context.Context, key string, obj *Object) error
	GetObject(ctx context.Context, key string) (*Object, error)
}

// FileSystemArchive implements ObjectStore on the local filesystem. Each
// object is written as the blob plus a ".meta.json" sidecar.
type FileSystemArchive struct {
	rootDir string
}

// NewFileSystemArchive creates a new filesystem-based archive
func NewFileSystemArchive(rootDir string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemArchive{rootDir: rootDir}, nil
}

func (s *FileSystemArchive) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.rootDir, clean), nil
}

// PutObject implements ObjectStore.PutObject
func (s *FileSystemArchive) PutObject(ctx context.Context, key string, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	meta, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object metadata: %w", err)
	}

	// Write to a temp file first so readers never see a partial document
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, obj.Data, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.WriteFile(p+".meta.json", meta, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write object metadata: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// GetObject implements ObjectStore.GetObject
func (s *FileSystemArchive) GetObject(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	obj := &Object{}
	meta, err := os.ReadFile(p + ".meta.json")
	if err == nil {
		if err := json.Unmarshal(meta, obj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal object metadata: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read object metadata: %w", err)
	}
	obj.Data = data

	return obj, nil
}
