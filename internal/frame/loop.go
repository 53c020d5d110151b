package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetview/animator/internal/queue"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInterval is roughly one display refresh at 60Hz.
const DefaultInterval = 16 * time.Millisecond

var (
	// ErrLoopStopped is returned by Do once Run has returned.
	ErrLoopStopped = errors.New("frame loop stopped")
	// ErrLoopRunning is returned by Run when the loop is already running.
	ErrLoopRunning = errors.New("frame loop already running")
)

// Loop is a Scheduler whose frames fire from a ticker on a single goroutine.
// Every frame callback and every posted task runs on that goroutine, so state
// touched only from there needs no locking.
type Loop struct {
	interval time.Duration
	log      zerolog.Logger

	s     schedule
	tasks *queue.Queue[func()]

	startOnce sync.Once
	stopped   chan struct{}

	ticks     metric.Int64Counter
	callbacks metric.Int64Counter
	panics    metric.Int64Counter
}

// NewLoop creates a loop ticking every interval. A non-positive interval
// falls back to DefaultInterval.
func NewLoop(interval time.Duration, logger zerolog.Logger) (*Loop, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &Loop{
		interval: interval,
		log:      logger.With().Str("component", "frame").Logger(),
		tasks:    queue.New[func()](),
		stopped:  make(chan struct{}),
	}

	m := meter()
	var err error

	l.ticks, err = m.Int64Counter(
		"frame.ticks",
		metric.WithDescription("Frames produced by the loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	l.callbacks, err = m.Int64Counter(
		"frame.callbacks",
		metric.WithDescription("Frame callbacks invoked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating callbacks counter: %w", err)
	}

	l.panics, err = m.Int64Counter(
		"frame.panics",
		metric.WithDescription("Callbacks or tasks that panicked and were recovered"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating panics counter: %w", err)
	}

	return l, nil
}

// Interval returns the tick cadence.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// ScheduleFrame queues cb for the next tick. Safe from any goroutine.
func (l *Loop) ScheduleFrame(cb Callback) Token {
	return l.s.add(cb)
}

// CancelFrame drops a queued callback. Cancelling a callback that already ran
// or was never issued is a no-op.
func (l *Loop) CancelFrame(t Token) {
	l.s.cancel(t)
}

// Post queues fn to run on the loop goroutine at the start of the next tick.
func (l *Loop) Post(fn func()) {
	l.tasks.Push(fn)
}

// Do runs fn on the loop goroutine and waits for it to finish. It must not be
// called from the loop goroutine itself.
//
// fn runs at most once, and only if Do returns nil: when ctx ends or the loop
// stops before the task is picked up, the task is withdrawn. Once fn has
// started, Do waits for it regardless of ctx.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	var claimed atomic.Bool
	done := make(chan struct{})
	l.Post(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(done)
		fn()
	})

	var err error
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-l.stopped:
		err = ErrLoopStopped
	}
	if claimed.CompareAndSwap(false, true) {
		return err
	}
	<-done
	return nil
}

// Run ticks until ctx is done. Pending tasks and callbacks are abandoned when
// it returns.
func (l *Loop) Run(ctx context.Context) error {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return ErrLoopRunning
	}
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Debug().Dur("interval", l.interval).Msg("Frame loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Msg("Frame loop stopped")
			return ctx.Err()
		case ts := <-ticker.C:
			l.tick(ts)
		}
	}
}

func (l *Loop) tick(ts time.Time) {
	for _, task := range l.tasks.Drain() {
		l.guard("task", func() { task() })
	}

	ran := l.s.run(ts, func(cb Callback, ts time.Time) {
		l.guard("callback", func() { cb(ts) })
	})

	ctx := context.Background()
	l.ticks.Add(ctx, 1)
	l.callbacks.Add(ctx, int64(ran))
}

// guard keeps one misbehaving callback from taking the loop down.
func (l *Loop) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(context.Background(), 1)
			l.log.Error().Str("kind", kind).Interface("panic", r).Msg("Recovered panic in frame loop")
		}
	}()
	fn()
}
