// pkg/core/marker.go
package core

import "time"

// MarkerID is the opaque handle of a marker placed on a host view.
// Zero never identifies a marker.
type MarkerID uint64

// Marker describes a marker at the moment it was placed.
type Marker struct {
	ID       MarkerID
	Style    Style
	Position LatLng
	Time     time.Time
}

// MarkerState is a marker position at a point in time.
type MarkerState struct {
	MarkerID MarkerID
	Position LatLng
	Time     time.Time
}

// DeleteMarker records the removal of a marker from its view.
type DeleteMarker struct {
	MarkerID MarkerID
	Time     time.Time
}
