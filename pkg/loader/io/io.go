package io

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/graphrag/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IOSource loads files directly from the local filesystem with caching.
type IOSource struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIOSource creates a new filesystem-based source.
func NewIOSource() *IOSource {
	return &IOSource{
		cache: make(map[string][]byte),
	}
}

// Fetch reads the file content from the filesystem. Results are cached.
func (l *IOSource) Fetch(ctx context.Context, ref loader.DocumentRef) ([]byte, error) {
	key := loader.CacheKey(ref)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Dir lists every supported file below dir, sorted by path. Document ids
// are derived from the path relative to dir so they survive moving the
// input directory.
func (l *IOSource) Dir(dir string) ([]loader.DocumentRef, error) {
	var refs []loader.DocumentRef
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		format, ok := loader.FormatFromPath(p)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		refs = append(refs, loader.DocumentRef{
			ID:     loader.DocumentID(filepath.ToSlash(rel)),
			Path:   p,
			Title:  filepath.ToSlash(rel),
			Format: format,
			Source: l,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}
