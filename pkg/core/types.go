// pkg/core/types.go
package core

import "slices"

// LatLng is a geographic coordinate in degrees (EPSG:4326).
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Path is an ordered, cyclic sequence of waypoints. After the last point the
// route returns to the first one.
type Path []LatLng

// Animatable reports whether the path has enough points to trace a segment.
func (p Path) Animatable() bool {
	return len(p) >= 2
}

// Next returns the index of the waypoint following i, wrapping at the end.
func (p Path) Next(i int) int {
	if len(p) == 0 {
		return 0
	}
	return (i + 1) % len(p)
}

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return slices.Clone(p)
}

// Equal reports whether both paths hold the same waypoints in the same order.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// PathFromPairs builds a Path from [lat, lng] pairs. Pairs with fewer than two
// values are skipped.
func PathFromPairs(pairs [][]float64) Path {
	path := make(Path, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		path = append(path, LatLng{Lat: pair[0], Lng: pair[1]})
	}
	return path
}

// Pairs returns the path as [lat, lng] pairs, the shape used on the wire.
func (p Path) Pairs() [][]float64 {
	pairs := make([][]float64, len(p))
	for i, pt := range p {
		pairs[i] = []float64{pt.Lat, pt.Lng}
	}
	return pairs
}
