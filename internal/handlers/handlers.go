// Package handlers exposes the vehicle layer to control commands. Commands
// arrive through the dispatcher and run on the frame loop, the only goroutine
// that touches the layer.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetview/animator/internal/dispatcher"
	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
	"github.com/rs/zerolog"
)

// Dispatcher commands served by Service.
const (
	CmdStatus   = "layer:status"
	CmdVisible  = "layer:visible"
	CmdToggle   = "layer:toggle"
	CmdPath     = "layer:path"
	CmdGetPath  = "layer:path:get"
	CmdDuration = "layer:duration"
)

// ErrBadRequest marks command input that can never succeed.
var ErrBadRequest = errors.New("bad request")

// ErrNoPath is returned when a class has no configured path.
var ErrNoPath = errors.New("no path configured")

// Runner executes work on the goroutine that owns the layer. Do runs fn
// only if it returns nil; a command that fails leaves the layer untouched.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// RouteRecorder is told about every path a class is given.
type RouteRecorder interface {
	RecordRoute(r core.Route) error
}

// VisibilityPayload is the payload of CmdVisible.
type VisibilityPayload struct {
	Visible bool `json:"visible"`
}

// PathPayload is the payload of CmdPath. An empty path removes the class.
type PathPayload struct {
	Class core.VehicleClass
	Path  core.Path
}

// DurationPayload is the payload of CmdDuration.
type DurationPayload struct {
	Class    core.VehicleClass
	Duration time.Duration
}

// PathResult is the result of CmdGetPath.
type PathResult struct {
	Class    core.VehicleClass
	Path     core.Path
	Duration time.Duration
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Loop   Runner
	Layer  *motion.Layer
	Routes RouteRecorder
	Logger zerolog.Logger
	// Timeout bounds how long a command waits for the loop.
	Timeout time.Duration
}

// Service provides the control commands of the vehicle layer
type Service struct {
	deps Dependencies
	now  func() time.Time
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &Service{deps: deps, now: time.Now}
}

// Register adds every command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdStatus, s.handleStatus)
	d.Register(CmdVisible, s.handleVisible, dispatcher.Logged())
	d.Register(CmdToggle, s.handleToggle, dispatcher.Logged())
	d.Register(CmdPath, s.handlePath, dispatcher.Logged())
	d.Register(CmdGetPath, s.handleGetPath)
	d.Register(CmdDuration, s.handleDuration, dispatcher.Logged())
}

// run executes fn on the loop and waits for it.
func (s *Service) run(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Timeout)
	defer cancel()
	return s.deps.Loop.Do(ctx, fn)
}

func (s *Service) handleStatus(e dispatcher.Event) (any, error) {
	var st motion.LayerStatus
	err := s.run(func() { st = s.deps.Layer.Status() })
	return st, err
}

func (s *Service) handleVisible(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(VisibilityPayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a visibility payload", ErrBadRequest, e.Command)
	}
	var st motion.LayerStatus
	err := s.run(func() {
		s.deps.Layer.SetVisible(p.Visible)
		st = s.deps.Layer.Status()
	})
	return st, err
}

func (s *Service) handleToggle(e dispatcher.Event) (any, error) {
	var st motion.LayerStatus
	err := s.run(func() {
		s.deps.Layer.Toggle()
		st = s.deps.Layer.Status()
	})
	if err == nil {
		s.deps.Logger.Info().Bool("visible", st.Visible).Msg("Vehicles toggled")
	}
	return st, err
}

func (s *Service) handlePath(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(PathPayload)
	if !ok || p.Class == "" {
		return nil, fmt.Errorf("%w: %s expects a class and a path", ErrBadRequest, e.Command)
	}
	var (
		st       motion.LayerStatus
		duration time.Duration
	)
	err := s.run(func() {
		s.deps.Layer.SetPath(p.Class, p.Path)
		duration = s.deps.Layer.Duration(p.Class)
		st = s.deps.Layer.Status()
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info().
		Str("class", string(p.Class)).
		Int("waypoints", len(p.Path)).
		Msg("Vehicle path changed")
	s.recordRoute(p.Class, p.Path, duration)
	return st, nil
}

func (s *Service) handleGetPath(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 || e.Args[0] == "" {
		return nil, fmt.Errorf("%w: %s expects a class", ErrBadRequest, e.Command)
	}
	class := core.VehicleClass(e.Args[0])
	res := PathResult{Class: class}
	var found bool
	err := s.run(func() {
		res.Path, found = s.deps.Layer.Path(class)
		res.Duration = s.deps.Layer.Duration(class)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w for %s", ErrNoPath, class)
	}
	return res, nil
}

func (s *Service) handleDuration(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(DurationPayload)
	if !ok || p.Class == "" || p.Duration <= 0 {
		return nil, fmt.Errorf("%w: %s expects a class and a positive duration", ErrBadRequest, e.Command)
	}
	var (
		st   motion.LayerStatus
		path core.Path
	)
	err := s.run(func() {
		s.deps.Layer.SetDuration(p.Class, p.Duration)
		path, _ = s.deps.Layer.Path(p.Class)
		st = s.deps.Layer.Status()
	})
	if err != nil {
		return nil, err
	}
	s.recordRoute(p.Class, path, p.Duration)
	return st, nil
}

// recordRoute hands an animatable path to the route recorder, if any.
func (s *Service) recordRoute(class core.VehicleClass, path core.Path, d time.Duration) {
	if s.deps.Routes == nil || !path.Animatable() {
		return
	}
	err := s.deps.Routes.RecordRoute(core.Route{Class: class, Path: path, Duration: d, Time: s.now()})
	if err != nil {
		s.deps.Logger.Warn().Err(err).Str("class", string(class)).Msg("Failed to record route")
	}
}
