package motion

import "github.com/fleetview/animator/pkg/core"

// HostView is the rendering surface markers are placed on. Each driver only
// ever touches the marker it placed.
type HostView interface {
	PlaceMarker(pos core.LatLng, style core.Style) (core.MarkerID, error)
	MoveMarker(id core.MarkerID, pos core.LatLng)
	RemoveMarker(id core.MarkerID)
	// IsAttached reports whether the marker is still displayed.
	IsAttached(id core.MarkerID) bool
}
