package motion

import (
	"time"

	"github.com/fleetview/animator/internal/frame"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
)

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithClock sets the time source used when drivers start. Defaults to time.Now.
func WithClock(now func() time.Time) LayerOption {
	return func(l *Layer) {
		l.now = now
	}
}

// WithDurations sets per-class segment durations.
func WithDurations(durations map[core.VehicleClass]time.Duration) LayerOption {
	return func(l *Layer) {
		for c, d := range durations {
			l.durations[c] = d
		}
	}
}

// WithStyles overrides per-class marker styles.
func WithStyles(styles map[core.VehicleClass]core.Style) LayerOption {
	return func(l *Layer) {
		for c, s := range styles {
			l.styles[c] = s
		}
	}
}

// Layer keeps one Driver per vehicle class. A class is animated exactly when
// the layer is visible, a view is attached and the class has an animatable
// path. Every input change reconciles the drivers against that rule.
type Layer struct {
	sched frame.Scheduler
	log   zerolog.Logger
	now   func() time.Time

	view    HostView
	visible bool
	closed  bool

	paths     map[core.VehicleClass]core.Path
	durations map[core.VehicleClass]time.Duration
	styles    map[core.VehicleClass]core.Style
	drivers   map[core.VehicleClass]*Driver
}

// NewLayer creates a hidden layer with no view and no paths.
func NewLayer(sched frame.Scheduler, logger zerolog.Logger, opts ...LayerOption) *Layer {
	l := &Layer{
		sched:     sched,
		log:       logger.With().Str("component", "layer").Logger(),
		now:       time.Now,
		paths:     make(map[core.VehicleClass]core.Path),
		durations: make(map[core.VehicleClass]time.Duration),
		styles:    make(map[core.VehicleClass]core.Style),
		drivers:   make(map[core.VehicleClass]*Driver),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AttachView makes v the surface drivers draw on. Switching to another view
// removes every marker from the old one first.
func (l *Layer) AttachView(v HostView) {
	if l.view == v {
		return
	}
	if l.view != nil {
		l.stopAll()
	}
	l.view = v
	l.log.Debug().Bool("attached", v != nil).Msg("View changed")
	l.reconcile()
}

// DetachView stops every driver and forgets the view.
func (l *Layer) DetachView() {
	l.AttachView(nil)
}

// SetVisible shows or hides every vehicle.
func (l *Layer) SetVisible(visible bool) {
	if l.visible == visible {
		return
	}
	l.visible = visible
	l.log.Info().Bool("visible", visible).Msg("Vehicle visibility changed")
	l.reconcile()
}

// Toggle flips visibility and returns the new value.
func (l *Layer) Toggle() bool {
	l.SetVisible(!l.visible)
	return l.visible
}

// Visible reports whether vehicles are shown.
func (l *Layer) Visible() bool {
	return l.visible
}

// SetPaths replaces the whole path set. Classes missing from paths lose
// their driver.
func (l *Layer) SetPaths(paths map[core.VehicleClass]core.Path) {
	l.paths = make(map[core.VehicleClass]core.Path, len(paths))
	for c, p := range paths {
		if len(p) > 0 {
			l.paths[c] = p.Clone()
		}
	}
	l.reconcile()
}

// SetPath sets the path of one class. An empty path removes it.
func (l *Layer) SetPath(class core.VehicleClass, path core.Path) {
	if len(path) == 0 {
		delete(l.paths, class)
	} else {
		l.paths[class] = path.Clone()
	}
	l.reconcile()
}

// Path returns the configured path of class.
func (l *Layer) Path(class core.VehicleClass) (core.Path, bool) {
	p, ok := l.paths[class]
	return p.Clone(), ok
}

// SetDuration changes the per-segment duration of class. A running driver
// restarts from the first waypoint.
func (l *Layer) SetDuration(class core.VehicleClass, d time.Duration) {
	l.durations[class] = d
	l.reconcile()
}

// Duration returns the per-segment duration applied to class.
func (l *Layer) Duration(class core.VehicleClass) time.Duration {
	if d, ok := l.durations[class]; ok {
		return d
	}
	if d, ok := core.DefaultDurations[class]; ok {
		return d
	}
	return core.DefaultSegmentDuration
}

// Driver returns the driver of class, if one exists.
func (l *Layer) Driver(class core.VehicleClass) (*Driver, bool) {
	d, ok := l.drivers[class]
	return d, ok
}

// Close stops every driver. The layer ignores later input.
func (l *Layer) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.stopAll()
}

func (l *Layer) style(class core.VehicleClass) core.Style {
	if s, ok := l.styles[class]; ok {
		s.Class = class
		return s
	}
	return core.StyleFor(class)
}

func (l *Layer) wanted(class core.VehicleClass) bool {
	return !l.closed && l.visible && l.view != nil && l.paths[class].Animatable()
}

func (l *Layer) reconcile() {
	if l.closed {
		return
	}

	classes := make(map[core.VehicleClass]struct{}, len(l.paths)+len(l.drivers))
	for c := range l.paths {
		classes[c] = struct{}{}
	}
	for c := range l.drivers {
		classes[c] = struct{}{}
	}

	for _, class := range core.SortedClasses(classes) {
		want := l.wanted(class)

		if d, ok := l.drivers[class]; ok {
			stale := !want ||
				d.State() != Running ||
				!d.Path().Equal(l.paths[class]) ||
				d.Duration() != l.Duration(class)
			if !stale {
				continue
			}
			d.Stop()
			delete(l.drivers, class)
		}

		if !want {
			continue
		}

		d := NewDriver(DriverConfig{
			Class:    class,
			Path:     l.paths[class],
			Style:    l.style(class),
			Duration: l.Duration(class),
		}, l.view, l.sched, l.log)
		if err := d.Start(l.now()); err != nil {
			l.log.Warn().Err(err).Str("class", string(class)).Msg("Vehicle not shown")
			continue
		}
		l.drivers[class] = d
	}
}

func (l *Layer) stopAll() {
	for _, class := range core.SortedClasses(l.drivers) {
		l.drivers[class].Stop()
		delete(l.drivers, class)
	}
}

// DriverStatus is a snapshot of one driver.
type DriverStatus struct {
	Class     core.VehicleClass `json:"class"`
	State     string            `json:"state"`
	Marker    core.MarkerID     `json:"marker"`
	Segment   int               `json:"segment"`
	Waypoints int               `json:"waypoints"`
	Position  core.LatLng       `json:"position"`
	Duration  time.Duration     `json:"durationNs"`
}

// LayerStatus is a snapshot of the layer.
type LayerStatus struct {
	Visible      bool                `json:"visible"`
	ViewAttached bool                `json:"viewAttached"`
	Closed       bool                `json:"closed"`
	Classes      []core.VehicleClass `json:"classes"`
	Drivers      []DriverStatus      `json:"drivers"`
}

// Status reports the configured classes and every driver in class order.
func (l *Layer) Status() LayerStatus {
	st := LayerStatus{
		Visible:      l.visible,
		ViewAttached: l.view != nil,
		Closed:       l.closed,
		Classes:      core.SortedClasses(l.paths),
		Drivers:      make([]DriverStatus, 0, len(l.drivers)),
	}
	for _, class := range core.SortedClasses(l.drivers) {
		d := l.drivers[class]
		st.Drivers = append(st.Drivers, DriverStatus{
			Class:     class,
			State:     d.State().String(),
			Marker:    d.Marker(),
			Segment:   d.Segment(),
			Waypoints: len(d.Path()),
			Position:  d.Position(),
			Duration:  d.Duration(),
		})
	}
	return st
}
