// Package streaming defines the messages exchanged with a map frontend over
// a WebSocket.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/fleetview/animator/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello        = "hello"
	TypePlaceMarker  = "place_marker"
	TypeMoveMarker   = "move_marker"
	TypeRemoveMarker = "remove_marker"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the frontend's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload opens a stream and tells the frontend where to look.
type HelloPayload struct {
	Session string      `json:"session"`
	Version string      `json:"version"`
	Center  core.LatLng `json:"center"`
	Zoom    int         `json:"zoom"`
}

// PlaceMarkerPayload adds a marker to the map.
type PlaceMarkerPayload struct {
	ID       core.MarkerID `json:"id"`
	Position core.LatLng   `json:"position"`
	Style    core.Style    `json:"style"`
	Time     time.Time     `json:"time"`
}

// MoveMarkerPayload repositions a marker.
type MoveMarkerPayload struct {
	ID       core.MarkerID `json:"id"`
	Position core.LatLng   `json:"position"`
	Time     time.Time     `json:"time"`
}

// RemoveMarkerPayload takes a marker off the map.
type RemoveMarkerPayload struct {
	ID   core.MarkerID `json:"id"`
	Time time.Time     `json:"time"`
}
