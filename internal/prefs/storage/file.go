package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// fileExt is appended to every escaped key.
const fileExt = ".json"

// File stores each key as one file in a directory. Keys are path-escaped
// to form file names and writes are atomic, so a crash never leaves a
// half-written document behind.
type File struct {
	dir string
}

// NewFile creates a file adapter rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the directory documents are stored in.
func (f *File) Dir() string {
	return f.dir
}

// PathFor returns the file a key is stored in.
func (f *File) PathFor(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileExt)
}

// KeyFor maps a file path back to its key. ok is false for files the
// adapter does not own.
func (f *File) KeyFor(path string) (key string, ok bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// Get implements Adapter.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.PathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Set implements Adapter.
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(f.PathFor(key), value, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Remove implements Adapter.
func (f *File) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(f.PathFor(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Clear implements Adapter. Only files the adapter owns are removed.
func (f *File) Clear(ctx context.Context) error {
	keys, err := f.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := f.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys implements Adapter.
func (f *File) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", f.dir, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := f.KeyFor(e.Name()); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
