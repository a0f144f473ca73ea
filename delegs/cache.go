package delegs

import (
	"sync"
	"time"
)

// StateCache holds the latest published (registry, balances) tuple for
// concurrent readers. Reads never block on an in-flight scan cycle and
// never observe a registry from one cycle paired with balances from
// another: Publish swaps the whole snapshot under a single lock.
type StateCache struct {
	maxStaleness time.Duration
	clock        Clock

	mu          sync.RWMutex
	snapshot    Snapshot
	publishedAt time.Time
}

// NewStateCache creates a cache that reports reads as stale once more than
// maxStaleness has passed since the last publish.
func NewStateCache(maxStaleness time.Duration, clk Clock) *StateCache {
	return &StateCache{
		maxStaleness: maxStaleness,
		clock:        clk,
	}
}

// Publish atomically replaces the published snapshot. Called only by the
// scan loop, once per successful cycle.
func (c *StateCache) Publish(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	c.publishedAt = c.clock.Now()
}

// Get returns the last fully-published snapshot together with a staleness
// indicator. Before the first publish the snapshot is zero and stale.
func (c *StateCache) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.publishedAt.IsZero() {
		return c.snapshot, true
	}
	stale := c.clock.Now().Sub(c.publishedAt) > c.maxStaleness
	return c.snapshot, stale
}
