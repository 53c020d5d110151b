package geo

import (
	"math"

	"github.com/fleetview/animator/pkg/core"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Bearing returns the initial heading from one coordinate to another in
// degrees clockwise from north, normalised to [0, 360).
func Bearing(from, to core.LatLng) float64 {
	b := orbgeo.Bearing(orb.Point{from.Lng, from.Lat}, orb.Point{to.Lng, to.Lat})
	b = math.Mod(b+360, 360)
	if b == 360 {
		return 0
	}
	return b
}

// LoopLength returns the length in meters of one full lap of path, including
// the closing segment back to the first waypoint.
func LoopLength(path core.Path) float64 {
	if !path.Animatable() {
		return 0
	}
	total := 0.0
	for i := range path {
		a, b := path[i], path[path.Next(i)]
		total += orbgeo.Distance(orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat})
	}
	return total
}
