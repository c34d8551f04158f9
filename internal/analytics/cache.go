package analytics

import (
	"sync"
	"time"
)

// cacheEntry holds cached stats and metadata
type cacheEntry struct {
	stats       []OperationStats
	lastRefresh time.Time
}

// statsCache provides thread-safe caching for per-run statistics
type statsCache struct {
	mu     sync.RWMutex
	perRun map[int64]*cacheEntry // key: run ID
	ttl    time.Duration         // cache time-to-live
}

// newStatsCache creates a new statistics cache with the specified TTL
func newStatsCache(ttl time.Duration) *statsCache {
	return &statsCache{
		perRun: make(map[int64]*cacheEntry),
		ttl:    ttl,
	}
}

// get retrieves cached per-operation stats if available and fresh
func (c *statsCache) get(runID int64) ([]OperationStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.perRun[runID]
	if !exists {
		return nil, false
	}

	// Check if cache is still fresh
	if time.Since(entry.lastRefresh) > c.ttl {
		return nil, false
	}

	return entry.stats, true
}

// set stores per-operation stats in cache
func (c *statsCache) set(runID int64, stats []OperationStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.perRun[runID] = &cacheEntry{
		stats:       stats,
		lastRefresh: time.Now(),
	}
}

// invalidateRun clears cached data for a specific run
func (c *statsCache) invalidateRun(runID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.perRun, runID)
}
