// pkg/core/session.go
package core

import "time"

// Session represents one run of the animator.
type Session struct {
	ID        uint
	Name      string
	StartTime time.Time
	Version   string
	Center    LatLng
	Zoom      int
}

// Route is the path assigned to a vehicle class during a session.
type Route struct {
	Class    VehicleClass
	Path     Path
	Duration time.Duration
	Time     time.Time
}
