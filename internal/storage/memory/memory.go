// Package memory is an in-process storage backend.
package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/AaronLay10/ProjectBoard/internal/storage"
)

// ErrQuotaExceeded is returned when a write would exceed the byte quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend keeps records in a map.
type Backend struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int
}

// New creates an empty backend. A quota of zero means unlimited.
func New(quota int) *Backend {
	return &Backend{data: make(map[string][]byte), quota: quota}
}

func (b *Backend) Read(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) Write(key string, data []byte) error {
	return b.WriteBatch(map[string][]byte{key: data})
}

// WriteBatch applies every entry under one lock after checking the quota.
func (b *Backend) WriteBatch(entries map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.quota > 0 {
		size := 0
		for k, v := range b.data {
			if _, replaced := entries[k]; !replaced {
				size += len(v)
			}
		}
		for _, v := range entries {
			size += len(v)
		}
		if size > b.quota {
			return ErrQuotaExceeded
		}
	}

	for k, v := range entries {
		b.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (b *Backend) Delete(keys ...string) error {
	b.mu.Lock()
	for _, k := range keys {
		delete(b.data, k)
	}
	b.mu.Unlock()
	return nil
}

func (b *Backend) Keys(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Close() error { return nil }
