package frame

import "time"

// Manual is a Scheduler driven by explicit Step calls. It backs tests and
// offline rendering where frame timestamps must be exact.
type Manual struct {
	s schedule
}

// NewManual creates a Manual scheduler with nothing pending.
func NewManual() *Manual {
	return &Manual{}
}

// ScheduleFrame queues cb for the next Step.
func (m *Manual) ScheduleFrame(cb Callback) Token {
	return m.s.add(cb)
}

// CancelFrame drops a queued callback. Unknown tokens are ignored.
func (m *Manual) CancelFrame(t Token) {
	m.s.cancel(t)
}

// Step runs the callbacks queued before the call with timestamp ts and
// returns how many ran.
func (m *Manual) Step(ts time.Time) int {
	return m.s.run(ts, func(cb Callback, ts time.Time) { cb(ts) })
}

// Pending returns the number of callbacks waiting for the next Step.
func (m *Manual) Pending() int {
	return m.s.size()
}
