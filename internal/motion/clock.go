package motion

import "time"

// Sample is the position of a clock within its path at one instant.
type Sample struct {
	From     int
	To       int
	Progress float64
}

// Complete reports whether the segment's time budget is used up.
func (s Sample) Complete() bool {
	return s.Progress >= 1
}

// SegmentClock turns frame timestamps into a segment index and the fraction
// of that segment elapsed. It never stops on its own; after the last segment
// it wraps to the first.
type SegmentClock struct {
	length   int
	duration time.Duration
	index    int
	start    time.Time
}

// NewSegmentClock starts a clock on segment 0 at now. length is the number of
// waypoints in the path.
func NewSegmentClock(length int, duration time.Duration, now time.Time) *SegmentClock {
	return &SegmentClock{
		length:   length,
		duration: duration,
		start:    now,
	}
}

// Sample reports the active segment at now without changing the clock. A
// non-positive duration makes every segment complete immediately.
func (c *SegmentClock) Sample(now time.Time) Sample {
	s := Sample{From: c.index, To: c.next()}
	if c.duration <= 0 {
		s.Progress = 1
		return s
	}
	elapsed := now.Sub(c.start)
	if elapsed <= 0 {
		return s
	}
	s.Progress = min(float64(elapsed)/float64(c.duration), 1)
	return s
}

// Advance moves to the next segment, which starts at now.
func (c *SegmentClock) Advance(now time.Time) {
	c.index = c.next()
	c.start = now
}

// Index returns the waypoint the active segment departs from.
func (c *SegmentClock) Index() int {
	return c.index
}

// Start returns when the active segment began.
func (c *SegmentClock) Start() time.Time {
	return c.start
}

// Duration returns the time budget of one segment.
func (c *SegmentClock) Duration() time.Duration {
	return c.duration
}

func (c *SegmentClock) next() int {
	if c.length <= 0 {
		return 0
	}
	return (c.index + 1) % c.length
}
