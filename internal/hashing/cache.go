package hashing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// DefaultMemorySize is the default LRU capacity.
const DefaultMemorySize = 1000

// Store is the persistent level of the cache.
type Store interface {
	GetCachedHash(ctx context.Context, path string, mtimeNs, size int64) (string, bool, error)
	PutCachedHash(ctx context.Context, e database.HashCacheEntry) error
	DeleteCachedHashes(ctx context.Context, path string) (int64, error)
	ListCachedPaths(ctx context.Context, prefix string) ([]string, error)
}

// Hasher yields a file's digest and whether it came from cache. Cache is
// the production implementation.
type Hasher interface {
	Get(ctx context.Context, path string) (string, bool, error)
	Invalidate(ctx context.Context, path string) error
}

type cacheKey struct {
	path    string
	mtimeNs int64
	size    int64
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Queries    int64   `json:"total_queries"`
	MemoryHits int64   `json:"memory_hits"`
	StoreHits  int64   `json:"db_hits"`
	Misses     int64   `json:"misses"`
	MemorySize int     `json:"memory_cache_size"`
	HitRate    float64 `json:"hit_rate"`
}

// Cache is the two-level digest cache.
type Cache struct {
	memory  *lru.Cache[cacheKey, string]
	store   Store
	compute func(string) (string, error)

	mu    sync.Mutex
	stats Stats
}

// NewCache creates a cache with an LRU of memorySize entries in front of
// store. store may be nil, leaving only the memory level.
func NewCache(store Store, memorySize int) (*Cache, error) {
	if memorySize <= 0 {
		memorySize = DefaultMemorySize
	}
	memory, err := lru.New[cacheKey, string](memorySize)
	if err != nil {
		return nil, fmt.Errorf("create hash LRU: %w", err)
	}
	return &Cache{memory: memory, store: store, compute: Compute}, nil
}

func (c *Cache) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// Get returns path's digest and whether it was served from either cache
// level. path should be absolute so entries stay valid across working
// directories.
func (c *Cache) Get(ctx context.Context, path string) (string, bool, error) {
	c.count(func(s *Stats) { s.Queries++ })

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		metrics.HashCacheLookups.WithLabelValues("error").Inc()
		return "", false, fmt.Errorf("stat %s: %w", path, err)
	}
	key := cacheKey{path: path, mtimeNs: info.ModTime().UnixNano(), size: info.Size()}

	if digest, ok := c.memory.Get(key); ok {
		c.count(func(s *Stats) { s.MemoryHits++ })
		metrics.HashCacheLookups.WithLabelValues("memory").Inc()
		return digest, true, nil
	}

	if c.store != nil {
		digest, ok, err := c.store.GetCachedHash(ctx, key.path, key.mtimeNs, key.size)
		if err != nil {
			// The persistent level is an optimization; fall through to hashing.
			logging.Warn("Hash cache lookup failed for %s: %v", path, err)
		} else if ok {
			c.memory.Add(key, digest)
			c.count(func(s *Stats) { s.StoreHits++ })
			metrics.HashCacheLookups.WithLabelValues("persistent").Inc()
			return digest, true, nil
		}
	}

	digest, err := c.compute(path)
	if err != nil {
		metrics.HashCacheLookups.WithLabelValues("error").Inc()
		return "", false, err
	}

	c.memory.Add(key, digest)
	if c.store != nil {
		entry := database.HashCacheEntry{Path: key.path, MtimeNs: key.mtimeNs, Size: key.size, ContentHash: digest}
		if err := c.store.PutCachedHash(ctx, entry); err != nil {
			logging.Warn("Failed to persist hash for %s: %v", path, err)
		}
	}

	c.count(func(s *Stats) { s.Misses++ })
	metrics.HashCacheLookups.WithLabelValues("miss").Inc()
	return digest, false, nil
}

// Invalidate drops every cached identity of path from both levels.
func (c *Cache) Invalidate(ctx context.Context, path string) error {
	for _, key := range c.memory.Keys() {
		if key.path == path {
			c.memory.Remove(key)
		}
	}

	if c.store == nil {
		return nil
	}
	n, err := c.store.DeleteCachedHashes(ctx, path)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", path, err)
	}
	logging.Debug("Invalidated %d cached hashes for %s", n, path)
	return nil
}

// CleanupStale removes entries under root whose file no longer exists and
// returns how many paths were dropped. Failures only cost a recompute
// later, so per-path errors are logged and skipped.
func (c *Cache) CleanupStale(ctx context.Context, root string) (int, error) {
	prefix := filepath.Clean(root) + string(filepath.Separator)

	stale := make(map[string]struct{})
	for _, key := range c.memory.Keys() {
		if len(key.path) > len(prefix) && key.path[:len(prefix)] == prefix && !filesystem.Exists(key.path) {
			stale[key.path] = struct{}{}
		}
	}

	if c.store != nil {
		paths, err := c.store.ListCachedPaths(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("list cached paths: %w", err)
		}
		for _, p := range paths {
			if _, err := os.Lstat(p); os.IsNotExist(err) {
				stale[p] = struct{}{}
			}
		}
	}

	removed := 0
	for p := range stale {
		if err := c.Invalidate(ctx, p); err != nil {
			logging.Warn("Failed to remove stale hash cache entry %s: %v", p, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.HashCacheStaleRemoved.Add(float64(removed))
		logging.Info("Removed %d stale hash cache entries", removed)
	}
	return removed, nil
}

// Stats returns lookup counters and the hit rate in percent.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()

	s.MemorySize = c.memory.Len()
	if s.Queries > 0 {
		s.HitRate = float64(s.MemoryHits+s.StoreHits) / float64(s.Queries) * 100
	}
	return s
}
