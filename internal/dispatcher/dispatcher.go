// Package dispatcher routes control commands to their handlers. A handler
// runs inline by default; Buffered moves it behind a queue drained by its
// own goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Queued is the result of a command accepted by a buffered handler.
const Queued = "queued"

// Event is a control command, from the HTTP API or from inside the process.
// Args carries positional string arguments; Payload carries typed data.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the key/value logger the dispatcher reports through.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	queue    int
	blocking bool
	logged   bool
}

// Buffered queues up to size events and runs the handler asynchronously.
// Dispatch then returns Queued.
func Buffered(size int) Option {
	return func(o *options) { o.queue = size }
}

// Blocking makes Dispatch wait for room in a full queue instead of
// failing with ErrQueueFull.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every event of the command with its duration.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// route is one registered command.
type route struct {
	command string
	handler HandlerFunc
	opts    options
	queue   chan Event
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *metrics

	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global meter provider, which
// is a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	m, err := newMetrics(meter(), d.queueDepths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register sets the handler of command, replacing any previous one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{command: command, handler: h}
	for _, opt := range opts {
		opt(&r.opts)
	}
	if r.opts.queue > 0 {
		r.queue = make(chan Event, r.opts.queue)
		d.workers.Add(1)
		go d.drain(r)
	}

	d.mu.Lock()
	if old, ok := d.routes[command]; ok && old.queue != nil {
		close(old.queue)
	}
	d.routes[command] = r
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler. A zero Timestamp is
// set to now.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	// The read lock is held across enqueueing so Close cannot close a
	// queue under a sender.
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	r, ok := d.routes[e.Command]
	if !ok {
		d.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if r.queue != nil {
		defer d.mu.RUnlock()
		return d.enqueue(r, e)
	}
	d.mu.RUnlock()
	return d.call(r, e)
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	if r.opts.blocking {
		r.queue <- e
		return Queued, nil
	}
	select {
	case r.queue <- e:
		return Queued, nil
	default:
		d.metrics.dropped.Add(context.Background(), 1, commandAttr(r.command))
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.workers.Done()
	for e := range r.queue {
		if _, err := d.call(r, e); err != nil && !r.opts.logged {
			d.logger.Error("buffered event failed", "command", r.command, "error", err)
		}
	}
}

// call runs the handler and records its outcome.
func (d *Dispatcher) call(r *route, e Event) (any, error) {
	ctx := context.Background()
	attr := commandAttr(r.command)
	if r.opts.logged {
		d.logger.Debug("handling event", "command", r.command, "args", len(e.Args))
	}

	start := time.Now()
	result, err := r.handler(e)
	took := time.Since(start)

	d.metrics.handled.Add(ctx, 1, attr)
	d.metrics.duration.Record(ctx, float64(took.Microseconds())/1000, attr)
	if err != nil {
		d.metrics.failed.Add(ctx, 1, attr)
	}
	if r.opts.logged {
		if err != nil {
			d.logger.Error("event failed", "command", r.command, "duration", took, "error", err)
		} else {
			d.logger.Debug("event complete", "command", r.command, "duration", took)
		}
	}
	return result, err
}

func (d *Dispatcher) queueDepths(observe func(command string, n int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, r := range d.routes {
		if r.queue != nil {
			observe(cmd, len(r.queue))
		}
	}
}

// Commands returns the registered commands in lexical order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmds := make([]string, 0, len(d.routes))
	for c := range d.routes {
		cmds = append(cmds, c)
	}
	sort.Strings(cmds)
	return cmds
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Close stops accepting events and waits until buffered handlers have
// processed what is already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}
