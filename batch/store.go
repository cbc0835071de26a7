package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/bdcache"
	"github.com/codeGROOVE-dev/bdcache/persist/localfs"

	"github.com/leadgroove/firmfinder/record"
)

// Store persists completed results keyed by target identity, so an
// interrupted run can resume without re-resolving finished targets.
type Store interface {
	Get(ctx context.Context, key string) (record.Result, bool, error)
	Put(ctx context.Context, key string, res record.Result) error
	Close() error
}

// DiskStore is a Store with local disk persistence.
type DiskStore struct {
	cache *bdcache.Cache[string, record.Result]
	ttl   time.Duration
}

// NewDiskStore creates a checkpoint store at ~/.cache/firmfinder/checkpoints.
// ttl bounds how long a checkpointed result keeps short-circuiting resumes.
func NewDiskStore(ctx context.Context, ttl time.Duration) (*DiskStore, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewDiskStoreAt(ctx, ttl, filepath.Join(cacheDir, "firmfinder", "checkpoints"))
}

// NewDiskStoreAt creates a checkpoint store at the specified path.
func NewDiskStoreAt(ctx context.Context, ttl time.Duration, path string) (*DiskStore, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	persist, err := localfs.New[string, record.Result]("firmfinder", path)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	cache, err := bdcache.New[string, record.Result](
		ctx,
		bdcache.WithPersistence(persist),
		bdcache.WithDefaultTTL(ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint store: %w", err)
	}

	return &DiskStore{cache: cache, ttl: ttl}, nil
}

// Get retrieves a checkpointed result.
func (s *DiskStore) Get(ctx context.Context, key string) (record.Result, bool, error) {
	res, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return record.Result{}, false, err
	}
	return res, true, nil
}

// Put stores a result.
func (s *DiskStore) Put(ctx context.Context, key string, res record.Result) error {
	return s.cache.Set(ctx, key, res, s.ttl)
}

// Close flushes and closes the store.
func (s *DiskStore) Close() error {
	return s.cache.Close()
}

// MemoryStore is an in-process Store for tests and one-shot runs.
type MemoryStore struct {
	mu      sync.Mutex
	results map[string]record.Result
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]record.Result)}
}

// Get retrieves a stored result.
func (s *MemoryStore) Get(_ context.Context, key string) (record.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[key]
	return res, ok, nil
}

// Put stores a result.
func (s *MemoryStore) Put(_ context.Context, key string, res record.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = res
	return nil
}

// Len reports how many results are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Close is a no-op.
func (*MemoryStore) Close() error { return nil }
