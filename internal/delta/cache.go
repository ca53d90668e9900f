package delta

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SnapshotCache caches replayed snapshots of pinned table versions to
// avoid reading the same log segment repeatedly
type SnapshotCache struct {
	cache      map[string]*cachedSnapshot
	mutex      sync.RWMutex
	ttl        time.Duration
	cleanupInt time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	hits       uint64
	misses     uint64
}

type cachedSnapshot struct {
	location  string
	snapshot  *Snapshot
	cachedAt  time.Time
	expiresAt time.Time
}

// CacheStats represents cache statistics
type CacheStats struct {
	TotalEntries   int           `json:"totalEntries"`
	ActiveEntries  int           `json:"activeEntries"`
	ExpiredEntries int           `json:"expiredEntries"`
	Hits           uint64        `json:"hits"`
	Misses         uint64        `json:"misses"`
	TTL            time.Duration `json:"ttl"`
}

// NewSnapshotCache creates a new snapshot cache
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SnapshotCache{
		cache:      make(map[string]*cachedSnapshot),
		ttl:        ttl,
		cleanupInt: cleanupInterval(ttl),
		stopChan:   make(chan struct{}),
	}
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

func cacheKey(location string, version, checkpoint *int64) string {
	cp := "auto"
	if checkpoint != nil {
		cp = fmt.Sprintf("%d", *checkpoint)
	}
	return fmt.Sprintf("%s@v%d#%s", location, *version, cp)
}

// Start begins the background cleanup process
func (sc *SnapshotCache) Start(ctx context.Context) {
	ticker := time.NewTicker(sc.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.stopChan:
			return
		case <-ticker.C:
			sc.cleanupExpired()
		}
	}
}

// Stop stops the background cleanup process
func (sc *SnapshotCache) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopChan) })
}

// Get retrieves the snapshot of a pinned version. Requests without a
// version are never cached.
func (sc *SnapshotCache) Get(location string, version, checkpoint *int64) (*Snapshot, bool) {
	if version == nil {
		return nil, false
	}

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	cached, exists := sc.cache[cacheKey(location, version, checkpoint)]
	if !exists || time.Now().After(cached.expiresAt) {
		sc.misses++
		return nil, false
	}
	sc.hits++
	return cached.snapshot, true
}

// Set stores the snapshot of a pinned version
func (sc *SnapshotCache) Set(location string, version, checkpoint *int64, snapshot *Snapshot) {
	if version == nil || snapshot == nil {
		return
	}

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	now := time.Now()
	sc.cache[cacheKey(location, version, checkpoint)] = &cachedSnapshot{
		location:  location,
		snapshot:  snapshot,
		cachedAt:  now,
		expiresAt: now.Add(sc.ttl),
	}
}

// Invalidate removes every cached version of a table
func (sc *SnapshotCache) Invalidate(location string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	for key, cached := range sc.cache {
		if cached.location == location {
			delete(sc.cache, key)
		}
	}
}

// cleanupExpired removes all expired entries from cache
func (sc *SnapshotCache) cleanupExpired() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	now := time.Now()
	for key, cached := range sc.cache {
		if now.After(cached.expiresAt) {
			delete(sc.cache, key)
		}
	}
}

// Stats returns cache statistics
func (sc *SnapshotCache) Stats() CacheStats {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	totalEntries := len(sc.cache)
	expiredEntries := 0
	now := time.Now()

	for _, cached := range sc.cache {
		if now.After(cached.expiresAt) {
			expiredEntries++
		}
	}

	return CacheStats{
		TotalEntries:   totalEntries,
		ActiveEntries:  totalEntries - expiredEntries,
		ExpiredEntries: expiredEntries,
		Hits:           sc.hits,
		Misses:         sc.misses,
		TTL:            sc.ttl,
	}
}

// Clear clears all cache entries
func (sc *SnapshotCache) Clear() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.cache = make(map[string]*cachedSnapshot)
}
