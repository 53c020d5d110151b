// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/fleetview/animator/internal/geo"
	"github.com/fleetview/animator/internal/model"
	"github.com/fleetview/animator/pkg/core"
	"gorm.io/datatypes"
)

// styleToJSON converts a core.Style to datatypes.JSON for DB storage.
func styleToJSON(s core.Style) datatypes.JSON {
	data, err := json.Marshal(s)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	m := model.Session{
		Name:      s.Name,
		Version:   s.Version,
		StartTime: s.StartTime,
		CenterLat: s.Center.Lat,
		CenterLng: s.Center.Lng,
		Zoom:      s.Zoom,
	}
	m.ID = s.ID
	return m
}

// CoreToRoute converts a core.Route to a GORM model.Route.
// Paths that cannot form a line are rejected.
func CoreToRoute(r core.Route) (model.Route, error) {
	line, err := geo.LineString3857(r.Path)
	if err != nil {
		return model.Route{}, fmt.Errorf("route %s: %w", r.Class, err)
	}
	return model.Route{
		Time:       r.Time,
		Class:      string(r.Class),
		Path:       line,
		Polyline:   geo.EncodePolyline(r.Path),
		Waypoints:  len(r.Path),
		DurationMs: r.Duration.Milliseconds(),
	}, nil
}

// CoreToMarker converts a core.Marker to a GORM model.Marker.
// core.Marker.ID maps to GORM Marker.ViewID.
func CoreToMarker(m core.Marker) (model.Marker, error) {
	pos, err := geo.Point3857(m.Position)
	if err != nil {
		return model.Marker{}, fmt.Errorf("marker %d: %w", m.ID, err)
	}
	return model.Marker{
		Time:     m.Time,
		ViewID:   uint64(m.ID),
		Class:    string(m.Style.Class),
		Style:    styleToJSON(m.Style),
		Position: pos,
	}, nil
}

// CoreToMarkerState converts a core.MarkerState to a GORM model.MarkerState.
// MarkerID is left for the caller to resolve to the marker's row.
func CoreToMarkerState(s core.MarkerState, bearing float64) (model.MarkerState, error) {
	pos, err := geo.Point3857(s.Position)
	if err != nil {
		return model.MarkerState{}, fmt.Errorf("marker %d state: %w", s.MarkerID, err)
	}
	return model.MarkerState{
		Time:     s.Time,
		Position: pos,
		Bearing:  float32(bearing),
	}, nil
}
