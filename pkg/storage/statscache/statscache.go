// Package statscache implements the StatsCache described in spec §4.5:
// a persisted, cached view of storage statistics that serves reads
// synchronously from memory and refreshes itself in the background with
// at most one walk in flight at a time.
//
// Grounded on the teacher's hybrid_store.go background-compaction
// goroutine, which the same way guards a single in-flight pass with a
// boolean flag under a mutex rather than a semaphore.
package statscache

import (
	"os"
	"sync"
	"time"

	"neuronstore/pkg/common"
	"neuronstore/pkg/storage/atomicfile"
)

// Walker computes the current hierarchical-tree byte totals. The engine
// supplies this; the cache itself has no notion of the on-disk layout.
type Walker func() (hierarchicalBytes int64, baseBytes int64, err error)

// StatsCache holds the last-known StorageStats and coordinates a single
// background refresh at a time.
type StatsCache struct {
	path   string
	walk   Walker
	nowFn  func() time.Time

	mu        sync.Mutex
	stats     common.StorageStats
	loaded    bool
	refreshing bool
}

// New constructs a StatsCache backed by path, using walk to recompute
// byte totals on refresh.
func New(path string, walk Walker) *StatsCache {
	return &StatsCache{path: path, walk: walk, nowFn: func() time.Time { return time.Now().UTC() }}
}

func (c *StatsCache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	if !atomicfile.Exists(c.path) {
		return
	}
	var s common.StorageStats
	if err := atomicfile.ReadJSON(c.path, &s); err == nil {
		c.stats = s
	} else if !os.IsNotExist(err) {
		c.stats = common.StorageStats{}
	}
}

// GetStats returns the cached stats synchronously, substituting
// max(cachedCount, currentMetadataCount) for ClusterCount so a reader
// never sees a stale undercount between background refreshes (spec
// §4.5).
func (c *StatsCache) GetStats(currentMetadataCount int) common.StorageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	result := c.stats
	if currentMetadataCount > result.ClusterCount {
		result.ClusterCount = currentMetadataCount
	}
	return result
}

// RefreshAsync kicks off a background recomputation of byte totals iff
// none is already in flight; it is a no-op otherwise (spec §4.5's
// at-most-one-in-flight guarantee).
func (c *StatsCache) RefreshAsync(clusterCount int) {
	c.mu.Lock()
	c.load()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	go c.refresh(clusterCount)
}

func (c *StatsCache) refresh(clusterCount int) {
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	hierarchicalBytes, baseBytes, err := c.walk()
	if err != nil {
		return
	}

	updated := common.StorageStats{
		ClusterCount:      clusterCount,
		BaseBytes:         baseBytes,
		HierarchicalBytes: hierarchicalBytes,
		LastUpdatedUtc:    c.nowFn(),
	}

	c.mu.Lock()
	c.stats = updated
	c.mu.Unlock()

	// Best-effort persist: a failed write here just means the next
	// refresh (sync or async) tries again: stats stay correct in memory
	// regardless.
	_ = atomicfile.WriteJSON(c.path, updated)
}

// RefreshSync runs the same recomputation synchronously, for callers
// (tests, explicit "flush now" operations) that need the result before
// proceeding.
func (c *StatsCache) RefreshSync(clusterCount int) error {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	hierarchicalBytes, baseBytes, err := c.walk()
	if err != nil {
		return err
	}

	updated := common.StorageStats{
		ClusterCount:      clusterCount,
		BaseBytes:         baseBytes,
		HierarchicalBytes: hierarchicalBytes,
		LastUpdatedUtc:    c.nowFn(),
	}

	c.mu.Lock()
	c.stats = updated
	c.mu.Unlock()

	return atomicfile.WriteJSON(c.path, updated)
}
