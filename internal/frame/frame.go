// Package frame provides the "call me before the next repaint" primitive the
// animation engine runs on. A Loop ticks on its own goroutine at a fixed
// cadence; Manual is stepped explicitly.
package frame

import (
	"sort"
	"sync"
	"time"
)

// Callback is invoked with the timestamp of the frame it runs in.
type Callback func(ts time.Time)

// Token identifies a scheduled callback. Zero is never issued.
type Token uint64

// Scheduler requests and cancels frame callbacks.
type Scheduler interface {
	ScheduleFrame(cb Callback) Token
	CancelFrame(t Token)
}

// schedule holds the callbacks waiting for the next frame and the batch of the
// frame currently running. Both Loop and Manual are built on it.
type schedule struct {
	mu      sync.Mutex
	last    Token
	pending map[Token]Callback
	running map[Token]Callback
}

func (s *schedule) add(cb Callback) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[Token]Callback)
	}
	s.last++
	s.pending[s.last] = cb
	return s.last
}

func (s *schedule) cancel(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, t)
	delete(s.running, t)
}

func (s *schedule) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// run takes every callback scheduled so far and invokes them in scheduling
// order. Callbacks added during the run wait for the next one; callbacks
// cancelled during the run are skipped.
func (s *schedule) run(ts time.Time, invoke func(Callback, time.Time)) int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.running = batch
	tokens := make([]Token, 0, len(batch))
	for t := range batch {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	ran := 0
	for _, t := range tokens {
		s.mu.Lock()
		cb, ok := s.running[t]
		delete(s.running, t)
		s.mu.Unlock()
		if !ok {
			continue
		}
		invoke(cb, ts)
		ran++
	}

	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()
	return ran
}
