package convert

import (
	"encoding/json"
	"time"

	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/internal/model"
	"github.com/fleetview/animator/pkg/core"
)

// SessionToCore converts a GORM Session to a core.Session
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
		Version:   s.Version,
		Center:    core.LatLng{Lat: s.CenterLat, Lng: s.CenterLng},
		Zoom:      s.Zoom,
	}
}

// RouteToCore converts a GORM Route to a core.Route. The waypoints come from
// the encoded polyline, which keeps them in WGS84.
func RouteToCore(r model.Route) (core.Route, error) {
	path, err := geo.DecodePolyline(r.Polyline)
	if err != nil {
		return core.Route{}, err
	}
	return core.Route{
		Class:    core.VehicleClass(r.Class),
		Path:     path,
		Duration: time.Duration(r.DurationMs) * time.Millisecond,
		Time:     r.Time,
	}, nil
}

// MarkerToCore converts a GORM Marker to a core.Marker
func MarkerToCore(m model.Marker) core.Marker {
	var style core.Style
	if len(m.Style) > 0 {
		_ = json.Unmarshal(m.Style, &style)
	}
	if style.Class == "" {
		style.Class = core.VehicleClass(m.Class)
	}
	pos, _ := geo.LatLngFrom3857(m.Position)
	return core.Marker{
		ID:       core.MarkerID(m.ViewID),
		Style:    style,
		Position: pos,
		Time:     m.Time,
	}
}

// MarkerStateToCore converts a GORM MarkerState to a core.MarkerState.
// The view handle comes from the parent marker, which must be preloaded.
func MarkerStateToCore(s model.MarkerState) core.MarkerState {
	pos, _ := geo.LatLngFrom3857(s.Position)
	return core.MarkerState{
		MarkerID: core.MarkerID(s.Marker.ViewID),
		Position: pos,
		Time:     s.Time,
	}
}
