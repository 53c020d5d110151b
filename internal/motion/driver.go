package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetview/animator/internal/frame"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// State is the lifecycle phase of a Driver.
type State int

const (
	Uninitialized State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriverConfig describes what one driver animates.
type DriverConfig struct {
	Class    core.VehicleClass
	Path     core.Path
	Style    core.Style
	Duration time.Duration
}

// Driver animates a single marker around a path. It owns the marker it
// places and the frame callback it keeps pending; Stop releases both.
// A stopped driver cannot be restarted.
type Driver struct {
	cfg   DriverConfig
	view  HostView
	sched frame.Scheduler
	log   zerolog.Logger
	attrs metric.MeasurementOption

	state    State
	clock    *SegmentClock
	marker   core.MarkerID
	token    frame.Token
	position core.LatLng
}

// NewDriver creates a driver in the Uninitialized state. The path is copied.
func NewDriver(cfg DriverConfig, view HostView, sched frame.Scheduler, logger zerolog.Logger) *Driver {
	cfg.Path = cfg.Path.Clone()
	if cfg.Style.Class == "" {
		cfg.Style.Class = cfg.Class
	}
	return &Driver{
		cfg:   cfg,
		view:  view,
		sched: sched,
		log:   logger.With().Str("class", string(cfg.Class)).Logger(),
		attrs: metric.WithAttributes(attribute.String("class", string(cfg.Class))),
	}
}

// Start places the marker on the first waypoint and schedules the first
// frame. On error nothing is left on the view and no frame is pending.
func (d *Driver) Start(now time.Time) error {
	if d.state != Uninitialized {
		return ErrDriverStarted
	}
	if !d.cfg.Path.Animatable() {
		return ErrPathTooShort
	}
	if d.view == nil {
		return ErrViewUnavailable
	}

	first := d.cfg.Path[0]
	id, err := d.view.PlaceMarker(first, d.cfg.Style)
	if err != nil {
		return fmt.Errorf("placing marker: %w", err)
	}

	d.marker = id
	d.position = first
	d.clock = NewSegmentClock(len(d.cfg.Path), d.cfg.Duration, now)
	d.state = Running
	d.token = d.sched.ScheduleFrame(d.frame)

	ctx := context.Background()
	metrics().placed.Add(ctx, 1, d.attrs)
	metrics().active.Add(ctx, 1, d.attrs)

	d.log.Debug().
		Uint64("marker", uint64(id)).
		Int("waypoints", len(d.cfg.Path)).
		Dur("segment", d.cfg.Duration).
		Msg("Driver started")
	return nil
}

// Stop cancels the pending frame and removes the marker if the view still
// shows it. It is safe to call in any state and more than once.
func (d *Driver) Stop() {
	if d.state == Stopped {
		return
	}
	wasRunning := d.state == Running
	d.state = Stopped

	if d.token != 0 {
		d.sched.CancelFrame(d.token)
		d.token = 0
	}

	if d.marker != 0 {
		if d.view != nil && d.view.IsAttached(d.marker) {
			d.view.RemoveMarker(d.marker)
			metrics().removed.Add(context.Background(), 1, d.attrs)
		}
		d.marker = 0
	}

	if wasRunning {
		metrics().active.Add(context.Background(), -1, d.attrs)
		d.log.Debug().Msg("Driver stopped")
	}
}

func (d *Driver) frame(ts time.Time) {
	d.token = 0
	if d.state != Running {
		return
	}
	// a frame that panics leaves nothing scheduled, so the driver must not
	// stay Running
	defer func() {
		if r := recover(); r != nil {
			d.abort(r)
			panic(r)
		}
	}()

	if !d.view.IsAttached(d.marker) {
		d.log.Debug().Uint64("marker", uint64(d.marker)).Msg("Marker detached from view")
		d.Stop()
		return
	}

	s := d.clock.Sample(ts)
	d.position = Interpolate(d.cfg.Path[s.From], d.cfg.Path[s.To], s.Progress)
	d.view.MoveMarker(d.marker, d.position)
	if s.Complete() {
		d.clock.Advance(ts)
	}
	metrics().frames.Add(context.Background(), 1, d.attrs)

	d.token = d.sched.ScheduleFrame(d.frame)
}

// abort stops the driver after a failed frame. The view that failed may fail
// again while the marker is removed; that is logged and swallowed.
func (d *Driver) abort(cause any) {
	d.log.Error().Interface("panic", cause).Uint64("marker", uint64(d.marker)).Msg("Frame failed, stopping driver")
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("Removing marker of failed driver")
		}
	}()
	d.Stop()
}

// Class returns the vehicle class being animated.
func (d *Driver) Class() core.VehicleClass {
	return d.cfg.Class
}

// Path returns the driver's own copy of its path. Callers must not modify it.
func (d *Driver) Path() core.Path {
	return d.cfg.Path
}

// Duration returns the per-segment time budget.
func (d *Driver) Duration() time.Duration {
	return d.cfg.Duration
}

// State returns the lifecycle phase.
func (d *Driver) State() State {
	return d.state
}

// Marker returns the placed marker, or zero when none is held.
func (d *Driver) Marker() core.MarkerID {
	return d.marker
}

// Position returns the last position pushed to the view.
func (d *Driver) Position() core.LatLng {
	return d.position
}

// Segment returns the index of the waypoint the marker is departing from.
func (d *Driver) Segment() int {
	if d.clock == nil {
		return 0
	}
	return d.clock.Index()
}

// Pending reports whether a frame callback is scheduled.
func (d *Driver) Pending() bool {
	return d.token != 0
}
