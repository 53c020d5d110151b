// Package motion moves vehicle markers along cyclic waypoint paths. A Driver
// animates one marker; a Layer keeps one Driver per vehicle class in step with
// visibility, view availability and path changes.
//
// Nothing in this package locks. Drivers and layers must only be used from the
// goroutine that runs their frame scheduler.
package motion

import (
	"math"

	"github.com/fleetview/animator/pkg/core"
)

// Interpolate returns the point at fraction progress of the straight line from
// start to end, in degree space. Progress is clamped to [0, 1]; the endpoints
// are returned unchanged at 0 and 1.
func Interpolate(start, end core.LatLng, progress float64) core.LatLng {
	switch {
	case progress <= 0 || math.IsNaN(progress):
		return start
	case progress >= 1:
		return end
	}
	return core.LatLng{
		Lat: start.Lat + (end.Lat-start.Lat)*progress,
		Lng: start.Lng + (end.Lng-start.Lng)*progress,
	}
}
