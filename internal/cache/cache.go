package cache

import (
	"sync"

	"github.com/fleetview/animator/pkg/core"
)

// TrackCache keeps the last recorded state of every live marker, so that
// consecutive states can be throttled and given a heading without a db read.
type TrackCache struct {
	m      sync.Mutex
	States map[core.MarkerID]core.MarkerState
}

func NewTrackCache() *TrackCache {
	return &TrackCache{
		States: make(map[core.MarkerID]core.MarkerState),
	}
}

func (c *TrackCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.States = make(map[core.MarkerID]core.MarkerState)
}

func (c *TrackCache) Get(id core.MarkerID) (core.MarkerState, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if s, ok := c.States[id]; ok {
		return s, true
	}
	return core.MarkerState{}, false
}

// Swap stores s as the latest state of its marker and returns the one it replaced.
func (c *TrackCache) Swap(s core.MarkerState) (core.MarkerState, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	prev, ok := c.States[s.MarkerID]
	c.States[s.MarkerID] = s
	return prev, ok
}

func (c *TrackCache) Delete(id core.MarkerID) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.States, id)
}

func (c *TrackCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.States)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
