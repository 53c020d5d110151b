package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Route{},
	&Marker{},
	&MarkerState{},
}

// DatabaseModelsSQLite is migrated when the recorder falls back to SQLite.
// The schema is the same; geometries are stored as WKB blobs.
var DatabaseModelsSQLite = []interface{}{
	&Session{},
	&Route{},
	&Marker{},
	&MarkerState{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Session is one run of the animator
type Session struct {
	gorm.Model
	Name      string    `json:"name" gorm:"size:128"`
	Version   string    `json:"version" gorm:"size:64"`
	StartTime time.Time `json:"startTime" gorm:"index:idx_session_start"`
	CenterLat float64   `json:"centerLat"`
	CenterLng float64   `json:"centerLng"`
	Zoom      int       `json:"zoom"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Route is the path a vehicle class was given during a session. A class may
// have several routes per session when its path is swapped at runtime.
type Route struct {
	ID         uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time       `json:"time"`
	SessionID  uint            `json:"sessionId" gorm:"index:idx_route_session_id"`
	Session    Session         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Class      string          `json:"class" gorm:"size:64;index:idx_route_class"`
	Path       geom.LineString `json:"path"`                     // Waypoints in EPSG:3857
	Polyline   string          `json:"polyline" gorm:"size:4096"` // Encoded polyline of the WGS84 waypoints
	Waypoints  int             `json:"waypoints"`
	DurationMs int64           `json:"durationMs"` // Time budget per segment
}

func (*Route) TableName() string {
	return "routes"
}

////////////////////////
// MARKER MODELS
////////////////////////

// Marker is a vehicle marker placed on the host view
type Marker struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"` // Time the marker was placed
	SessionID uint      `json:"sessionId" gorm:"index:idx_marker_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`

	ViewID    uint64         `json:"viewId" gorm:"index:idx_marker_view_id"` // Handle assigned by the host view
	Class     string         `json:"class" gorm:"size:64;index:idx_marker_class"`
	Style     datatypes.JSON `json:"style"`
	Position  geom.Point     `json:"position"` // Position at placement, EPSG:3857
	IsDeleted bool           `json:"isDeleted" gorm:"default:false"`
}

func (*Marker) TableName() string {
	return "markers"
}

// MarkerState tracks marker movement over time
type MarkerState struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"index:idx_markerstate_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_markerstate_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	MarkerID  uint      `json:"markerId" gorm:"index:idx_markerstate_marker_id"` // Database ID of parent Marker
	Marker    Marker    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MarkerID;"`

	Position geom.Point `json:"position"` // EPSG:3857
	Bearing  float32    `json:"bearing"`  // Degrees clockwise from north, 0-360
}

func (*MarkerState) TableName() string {
	return "marker_states"
}
