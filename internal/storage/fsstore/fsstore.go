// Package fsstore implements the storage.Store contract as a directory of
// JSON files: one directory per resource type, single-valued resources as
// resource.json, collection entries as {sanitized_key}.json. Every Set
// writes through to disk immediately; the in-memory read cache can be
// disabled for deployments that run multiple relay processes against a
// shared root.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a filesystem-backed storage.Store.
type Store struct {
	root         string
	disableCache bool

	mu    sync.RWMutex
	cache map[string][]byte // full relative path -> file contents
}

// New returns an unopened Store rooted at root.
func New(root string, disableCache bool) *Store {
	return &Store{
		root:         root,
		disableCache: disableCache,
		cache:        make(map[string][]byte),
	}
}

// Open creates the root directory if missing.
func (s *Store) Open(ctx context.Context) error {
	return os.MkdirAll(s.root, 0o775)
}

// Close is a no-op for the filesystem backend.
func (s *Store) Close() error { return nil }

// sanitizeKey maps an arbitrary collection key to a filesystem-safe name;
// user-controlled strings must never introduce path separators.
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(key)
}

func (s *Store) resourcePath(name string) string {
	return filepath.Join(s.root, sanitizeKey(name), "resource.json")
}

func (s *Store) keyPath(collection, key string) string {
	return filepath.Join(s.root, sanitizeKey(collection), sanitizeKey(key)+".json")
}

func (s *Store) read(path string) ([]byte, bool, error) {
	if !s.disableCache {
		s.mu.RLock()
		if v, ok := s.cache[path]; ok {
			s.mu.RUnlock()
			return v, true, nil
		}
		s.mu.RUnlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fsstore: read %s: %w", path, err)
	}

	if !s.disableCache {
		s.mu.Lock()
		s.cache[path] = data
		s.mu.Unlock()
	}

	return data, true, nil
}

func (s *Store) write(path string, value []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
		return fmt.Errorf("fsstore: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, value, 0o664); err != nil {
		return fmt.Errorf("fsstore: write %s: %w", path, err)
	}

	if !s.disableCache {
		s.mu.Lock()
		s.cache[path] = value
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) remove(path string) (bool, error) {
	if !s.disableCache {
		s.mu.Lock()
		delete(s.cache, path)
		s.mu.Unlock()
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("fsstore: remove %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) GetResource(ctx context.Context, name string) ([]byte, bool, error) {
	return s.read(s.resourcePath(name))
}

func (s *Store) SetResource(ctx context.Context, name string, value []byte) error {
	return s.write(s.resourcePath(name), value)
}

func (s *Store) ExistsResource(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.read(s.resourcePath(name))
	return ok, err
}

func (s *Store) GetKey(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return s.read(s.keyPath(collection, key))
}

func (s *Store) SetKey(ctx context.Context, collection, key string, value []byte) error {
	return s.write(s.keyPath(collection, key), value)
}

func (s *Store) DeleteKey(ctx context.Context, collection, key string) (bool, error) {
	return s.remove(s.keyPath(collection, key))
}

func (s *Store) ExistsKey(ctx context.Context, collection, key string) (bool, error) {
	_, ok, err := s.read(s.keyPath(collection, key))
	return ok, err
}

// Marshal is a JSON helper for callers that store typed values.
func Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
