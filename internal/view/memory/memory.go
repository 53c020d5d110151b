// Package memory provides a host view that keeps markers in process. It backs
// headless runs and tests.
package memory

import (
	"sync"
	"time"

	"github.com/fleetview/animator/pkg/core"
)

// MarkerRecord is a marker together with how often it moved.
type MarkerRecord struct {
	Marker   core.Marker
	Position core.LatLng
	Moves    int
	Updated  time.Time
}

// View stores markers in memory.
type View struct {
	mu      sync.RWMutex
	markers map[core.MarkerID]*MarkerRecord
	nextID  core.MarkerID
	removed int
	now     func() time.Time
}

// New creates an empty view.
func New() *View {
	return &View{
		markers: make(map[core.MarkerID]*MarkerRecord),
		now:     time.Now,
	}
}

// Open is a no-op; the view is ready once created.
func (v *View) Open() error {
	return nil
}

// Close drops every marker.
func (v *View) Close() error {
	v.Detach()
	return nil
}

// PlaceMarker adds a marker and returns its ID. It never fails.
func (v *View) PlaceMarker(pos core.LatLng, style core.Style) (core.MarkerID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextID++
	now := v.now()
	v.markers[v.nextID] = &MarkerRecord{
		Marker: core.Marker{
			ID:       v.nextID,
			Style:    style,
			Position: pos,
			Time:     now,
		},
		Position: pos,
		Updated:  now,
	}
	return v.nextID, nil
}

// MoveMarker updates a marker position. Unknown markers are ignored.
func (v *View) MoveMarker(id core.MarkerID, pos core.LatLng) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.markers[id]
	if !ok {
		return
	}
	rec.Position = pos
	rec.Moves++
	rec.Updated = v.now()
}

// RemoveMarker deletes a marker. Unknown markers are ignored.
func (v *View) RemoveMarker(id core.MarkerID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.markers[id]; ok {
		delete(v.markers, id)
		v.removed++
	}
}

// IsAttached reports whether the marker is on the view.
func (v *View) IsAttached(id core.MarkerID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.markers[id]
	return ok
}

// Detach drops every marker at once, as when the map is torn down. It does
// not count as removal; wrap the view in view.Observed to have observers told.
func (v *View) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markers = make(map[core.MarkerID]*MarkerRecord)
}

// GetMarker returns a copy of the marker record.
func (v *View) GetMarker(id core.MarkerID) (MarkerRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rec, ok := v.markers[id]
	if !ok {
		return MarkerRecord{}, false
	}
	return *rec, true
}

// GetMarkerByClass returns the first marker of class, in ID order.
func (v *View) GetMarkerByClass(class core.VehicleClass) (MarkerRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var found *MarkerRecord
	for id, rec := range v.markers {
		if rec.Marker.Style.Class != class {
			continue
		}
		if found == nil || id < found.Marker.ID {
			found = rec
		}
	}
	if found == nil {
		return MarkerRecord{}, false
	}
	return *found, true
}

// Len returns the number of markers on the view.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.markers)
}

// Removed returns how many markers were removed through RemoveMarker.
func (v *View) Removed() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.removed
}
