package monitor

import "sync"

// Cache holds the single latest Snapshot.
//
// Many readers may Load concurrently; Swap excludes readers only for the
// pointer exchange. Snapshots are immutable so a loaded pointer never changes
// under the reader.
type Cache struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewCache() *Cache { return &Cache{} }

// Load returns the current snapshot, or nil before the first successful poll.
func (c *Cache) Load() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Swap installs next and returns the snapshot it replaced.
func (c *Cache) Swap(next *Snapshot) (prev *Snapshot) {
	c.mu.Lock()
	prev, c.snap = c.snap, next
	c.mu.Unlock()
	return prev
}
