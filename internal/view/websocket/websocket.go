// Package websocket provides a host view that mirrors markers to a map
// frontend over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetview/animator/pkg/core"
	"github.com/fleetview/animator/pkg/streaming"
	"github.com/rs/zerolog"
)

// Config holds WebSocket view configuration.
type Config struct {
	URL     string
	Secret  string
	Session string
	Version string
	Center  core.LatLng
	Zoom    int
}

type markerEntry struct {
	style    core.Style
	position core.LatLng
}

// View streams marker changes to a frontend. Attachment is tracked locally,
// so a dropped connection does not detach markers; the frontend receives the
// full marker set again after reconnecting.
type View struct {
	conn *connection
	cfg  Config
	now  func() time.Time

	mu      sync.Mutex
	nextID  core.MarkerID
	markers map[core.MarkerID]*markerEntry
}

// New creates a WebSocket view. Call Open before use.
func New(cfg Config, logger zerolog.Logger) *View {
	v := &View{
		conn:    newConnection(logger.With().Str("component", "websocket").Logger()),
		cfg:     cfg,
		now:     time.Now,
		markers: make(map[core.MarkerID]*markerEntry),
	}
	v.conn.replay = v.replayMessages
	return v
}

// Open connects to the frontend and waits for it to acknowledge the hello.
func (v *View) Open() error {
	if err := v.conn.dial(v.cfg.URL, v.cfg.Secret); err != nil {
		return err
	}
	data, err := marshalEnvelope(streaming.TypeHello, v.hello())
	if err != nil {
		return err
	}
	return v.conn.sendAndWait(data, streaming.TypeHello, ackTimeout)
}

// Close disconnects from the frontend.
func (v *View) Close() error {
	return v.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (v *View) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	v.conn.send(data)
	return nil
}

func (v *View) hello() streaming.HelloPayload {
	return streaming.HelloPayload{
		Session: v.cfg.Session,
		Version: v.cfg.Version,
		Center:  v.cfg.Center,
		Zoom:    v.cfg.Zoom,
	}
}

// PlaceMarker assigns an auto-increment ID and sends the marker.
func (v *View) PlaceMarker(pos core.LatLng, style core.Style) (core.MarkerID, error) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.markers[id] = &markerEntry{style: style, position: pos}
	v.mu.Unlock()

	err := v.sendEnvelope(streaming.TypePlaceMarker, streaming.PlaceMarkerPayload{
		ID:       id,
		Position: pos,
		Style:    style,
		Time:     v.now(),
	})
	if err != nil {
		v.mu.Lock()
		delete(v.markers, id)
		v.mu.Unlock()
		return 0, err
	}
	return id, nil
}

// MoveMarker sends the new position of an attached marker.
func (v *View) MoveMarker(id core.MarkerID, pos core.LatLng) {
	v.mu.Lock()
	m, ok := v.markers[id]
	if ok {
		m.position = pos
	}
	v.mu.Unlock()
	if !ok {
		return
	}

	_ = v.sendEnvelope(streaming.TypeMoveMarker, streaming.MoveMarkerPayload{
		ID:       id,
		Position: pos,
		Time:     v.now(),
	})
}

// RemoveMarker takes an attached marker off the frontend.
func (v *View) RemoveMarker(id core.MarkerID) {
	v.mu.Lock()
	_, ok := v.markers[id]
	delete(v.markers, id)
	v.mu.Unlock()
	if !ok {
		return
	}

	_ = v.sendEnvelope(streaming.TypeRemoveMarker, streaming.RemoveMarkerPayload{
		ID:   id,
		Time: v.now(),
	})
}

// IsAttached reports whether the marker was placed and not yet removed.
func (v *View) IsAttached(id core.MarkerID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.markers[id]
	return ok
}

// Len returns the number of attached markers.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.markers)
}

// replayMessages rebuilds the frontend: hello first, then every attached
// marker at its latest position in ID order.
func (v *View) replayMessages() [][]byte {
	hello, err := marshalEnvelope(streaming.TypeHello, v.hello())
	if err != nil {
		return nil
	}
	msgs := [][]byte{hello}

	v.mu.Lock()
	ids := make([]core.MarkerID, 0, len(v.markers))
	for id := range v.markers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	payloads := make([]streaming.PlaceMarkerPayload, 0, len(ids))
	now := v.now()
	for _, id := range ids {
		m := v.markers[id]
		payloads = append(payloads, streaming.PlaceMarkerPayload{
			ID:       id,
			Position: m.position,
			Style:    m.style,
			Time:     now,
		})
	}
	v.mu.Unlock()

	for _, p := range payloads {
		data, err := marshalEnvelope(streaming.TypePlaceMarker, p)
		if err != nil {
			continue
		}
		msgs = append(msgs, data)
	}
	return msgs
}
