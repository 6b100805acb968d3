// pkg/storage/local.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects as files under root/bucket/name
type Local struct {
	root string
}

// NewLocal creates a filesystem store rooted at dir
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) path(bucket, name string) (string, error) {
	if bucket == "" || name == "" {
		return "", fmt.Errorf("bucket and object name are required")
	}
	p := filepath.Join(l.root, bucket, filepath.FromSlash(name))
	if !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("object %s/%s escapes the storage root", bucket, name)
	}
	return p, nil
}

// Exists reports whether an object file is present
func (l *Local) Exists(_ context.Context, bucket, name string) (bool, error) {
	p, err := l.path(bucket, name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return !info.IsDir(), nil
}

// Read returns the file content
func (l *Local) Read(_ context.Context, bucket, name string) ([]byte, error) {
	p, err := l.path(bucket, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Write creates or replaces the file. The content type is not persisted.
func (l *Local) Write(_ context.Context, bucket, name, _ string, data []byte) error {
	p, err := l.path(bucket, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", p, err)
	}
	return nil
}
