package cache

import (
	"sync"

	"github.com/fleetview/animator/pkg/core"
)

// MarkerCache maps view marker handles to their database IDs for the current session
type MarkerCache struct {
	mu      sync.RWMutex
	markers map[core.MarkerID]uint
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		markers: make(map[core.MarkerID]uint),
	}
}

// Get retrieves a marker row ID by view handle
func (c *MarkerCache) Get(id core.MarkerID) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.markers[id]
	return row, ok
}

// Set stores a marker row ID by view handle
func (c *MarkerCache) Set(id core.MarkerID, row uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[id] = row
}

// Delete removes a marker by view handle
func (c *MarkerCache) Delete(id core.MarkerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, id)
}

// Len returns the number of cached markers
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Reset clears all markers from the cache
func (c *MarkerCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = make(map[core.MarkerID]uint)
}
