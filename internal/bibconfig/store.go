package bibconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies one cached document by its canonical path and the
// modification time observed when it was last parsed. A file edited on disk
// gets a new key and is reparsed on next load; storing the new entry
// removes the stale one for the same path.
type cacheKey struct {
	path    string
	modTime int64
}

type cacheEntry struct {
	root   *ConfigRoot
	result *ValidationResult
}

// Store loads, validates and caches BIB configuration documents read from
// disk, keyed by canonical path plus modification time so edited files are
// transparently reparsed.
type Store struct {
	mu       sync.RWMutex
	cache    *lru.Cache[cacheKey, *cacheEntry]
	pathKeys map[string]cacheKey
	logger   *slog.Logger
}

// NewStore builds a Store backed by an LRU of the given size. size must be
// positive.
func NewStore(size int, logger *slog.Logger) (*Store, error) {
	if size <= 0 {
		return nil, fmt.Errorf("bibconfig: store size must be positive, got %d", size)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[cacheKey, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("bibconfig: failed to create cache: %w", err)
	}
	return &Store{
		cache:    cache,
		pathKeys: make(map[string]cacheKey),
		logger:   logger,
	}, nil
}

// Load reads, parses and validates the document at path, returning the
// parsed tree along with its validation result. A cached copy is reused if
// the file's modification time has not changed since it was last loaded.
// Load fails only on hard errors (unreadable file, malformed XML, or a
// validation Error-severity finding); Warnings are returned but do not fail
// the call.
func (s *Store) Load(path string) (*ConfigRoot, *ValidationResult, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bibconfig: failed to resolve path %q: %w", path, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, nil, fmt.Errorf("bibconfig: failed to stat %q: %w", canonical, err)
	}

	key := cacheKey{path: canonical, modTime: info.ModTime().UnixNano()}

	if entry, ok := s.lookup(key); ok {
		s.logger.Debug("bib configuration cache hit", "path", canonical)
		return entry.root, entry.result, nil
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		return nil, nil, fmt.Errorf("bibconfig: failed to read %q: %w", canonical, err)
	}

	root, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("bibconfig: failed to parse %q: %w", canonical, err)
	}

	result := Validate(root)
	if !result.Valid() {
		return nil, result, fmt.Errorf("bibconfig: %q failed validation with %d error(s)", canonical, len(result.Errors))
	}

	for _, w := range result.Warnings {
		s.logger.Warn("bib configuration validation warning", "path", canonical, "finding", w.String())
	}

	s.store(key, canonical, &cacheEntry{root: root, result: result})
	s.logger.Info("loaded bib configuration", "path", canonical, "bibs", len(root.Bibs))

	return root, result, nil
}

func (s *Store) lookup(key cacheKey) (*cacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(key)
}

func (s *Store) store(key cacheKey, canonical string, entry *cacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pathKeys[canonical]; ok && old != key {
		s.cache.Remove(old)
	}
	s.pathKeys[canonical] = key
	s.cache.Add(key, entry)
}

// Invalidate drops any cached entry for path, forcing the next Load to
// reparse regardless of modification time.
func (s *Store) Invalidate(path string) error {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bibconfig: failed to resolve path %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.pathKeys[canonical]; ok {
		s.cache.Remove(key)
		delete(s.pathKeys, canonical)
	}
	return nil
}

// Len reports the number of documents currently cached.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Len()
}
