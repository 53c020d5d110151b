package cache

import (
	"sync"
	"testing"

	"github.com/fleetview/animator/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerCache_Lifecycle(t *testing.T) {
	c := NewMarkerCache()
	require.NotNil(t, c)
	assert.Equal(t, 0, c.Len())

	// a truck and a car are placed, then the truck's row is rewritten
	c.Set(7, 1)
	c.Set(8, 2)
	c.Set(7, 3)

	row, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint(3), row)
	assert.Equal(t, 2, c.Len())

	c.Delete(7)
	_, ok = c.Get(7)
	assert.False(t, ok, "removed marker should be gone")
	row, ok = c.Get(8)
	require.True(t, ok, "other marker should survive")
	assert.Equal(t, uint(2), row)

	// unknown handles are ignored
	c.Delete(999)
	_, ok = c.Get(999)
	assert.False(t, ok)
}

func TestMarkerCache_ResetStartsNewSession(t *testing.T) {
	c := NewMarkerCache()
	for id := core.MarkerID(1); id <= 3; id++ {
		c.Set(id, uint(id)*10)
	}

	c.Reset()

	assert.Equal(t, 0, c.Len())
	for id := core.MarkerID(1); id <= 3; id++ {
		_, ok := c.Get(id)
		assert.False(t, ok, "marker %d should be cleared", id)
	}

	c.Set(4, 40)
	row, ok := c.Get(4)
	require.True(t, ok)
	assert.Equal(t, uint(40), row)
}

func TestMarkerCache_Concurrent(t *testing.T) {
	c := NewMarkerCache()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		i := i
		id := core.MarkerID(i % 10)
		wg.Add(3)
		go func() {
			defer wg.Done()
			c.Set(id, uint(i))
		}()
		go func() {
			defer wg.Done()
			c.Get(id)
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				c.Delete(id)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
}
