// Package storage provides object storage for index output: an S3 bucket
// or a local directory with the same key layout.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned for missing objects. It matches fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("object not found: %w", fs.ErrNotExist)

// Dir stores objects as files below a root directory. Keys use forward
// slashes.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	return data, err
}

// Put writes the object through a temp file and rename so readers never
// see partial content.
func (d *Dir) Put(_ context.Context, key string, data []byte) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (d *Dir) DeletePrefix(_ context.Context, prefix string) error {
	return os.RemoveAll(d.path(prefix))
}
