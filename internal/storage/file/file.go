// Package file stores each record as a JSON file in a directory.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

const ext = ".json"

// Backend writes records under Dir. Writes go to a temp file that is renamed
// into place.
type Backend struct {
	dir string
	mu  sync.Mutex
}

// New creates the directory if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create save dir: %w", err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+ext)
}

func (b *Backend) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

func (b *Backend) Write(key string, data []byte) error {
	return b.WriteBatch(map[string][]byte{key: data})
}

// WriteBatch stages every entry as a temp file before renaming any of them, so
// an encoding or disk-full failure leaves the previous records untouched.
func (b *Backend) WriteBatch(entries map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]string, len(entries))
	cleanup := func() {
		for tmp := range staged {
			os.Remove(tmp)
		}
	}

	for key, data := range entries {
		f, err := os.CreateTemp(b.dir, ".tmp-*")
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", key, err)
		}
		staged[f.Name()] = b.path(key)
		if _, err := f.Write(data); err != nil {
			f.Close()
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", key, err)
		}
		if err := f.Close(); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", key, err)
		}
	}

	for tmp, final := range staged {
		if err := os.Rename(tmp, final); err != nil {
			cleanup()
			return fmt.Errorf("failed to commit %s: %w", final, err)
		}
		delete(staged, tmp)
	}
	return nil
}

func (b *Backend) Delete(keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		if err := os.Remove(b.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *Backend) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Close() error { return nil }
