package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Memory store persisted as one JSON object on disk.
// Every Set/Delete rewrites the file through a temp file + rename.
type File struct {
	mem  *Memory
	path string
	mu   sync.Mutex // serializes writes to path
}

// NewFile opens (or creates) a file-backed store at path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}
	f := &File{mem: NewMemory(), path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("file store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.mem.entries); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", path, err)
	}
	if f.mem.entries == nil {
		f.mem.entries = make(map[string]string)
	}
	return f, nil
}

func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	return f.mem.Get(ctx, key)
}

func (f *File) Set(ctx context.Context, key, value string) error {
	if err := f.mem.Set(ctx, key, value); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) Delete(ctx context.Context, key string) error {
	if err := f.mem.Delete(ctx, key); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) Close() error { return f.flush() }

func (f *File) flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mem.mu.RLock()
	data, err := json.Marshal(f.mem.entries)
	f.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("file store: mkdir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}
