package motion

import (
	"errors"

	"github.com/fleetview/animator/pkg/core"
)

// fakeView records every call made by drivers.
type fakeView struct {
	next     core.MarkerID
	markers  map[core.MarkerID]core.LatLng
	styles   map[core.MarkerID]core.Style
	moves    int
	removes  int
	placeErr error
	// moveFails makes MoveMarker panic, like a view whose backend broke
	moveFails bool
}

func newFakeView() *fakeView {
	return &fakeView{
		markers: make(map[core.MarkerID]core.LatLng),
		styles:  make(map[core.MarkerID]core.Style),
	}
}

func (v *fakeView) PlaceMarker(pos core.LatLng, style core.Style) (core.MarkerID, error) {
	if v.placeErr != nil {
		return 0, v.placeErr
	}
	v.next++
	v.markers[v.next] = pos
	v.styles[v.next] = style
	return v.next, nil
}

func (v *fakeView) MoveMarker(id core.MarkerID, pos core.LatLng) {
	if v.moveFails {
		panic("view backend gone")
	}
	if _, ok := v.markers[id]; !ok {
		panic("move of unknown marker")
	}
	v.moves++
	v.markers[id] = pos
}

func (v *fakeView) RemoveMarker(id core.MarkerID) {
	if _, ok := v.markers[id]; !ok {
		panic(errors.New("double removal"))
	}
	v.removes++
	delete(v.markers, id)
	delete(v.styles, id)
}

func (v *fakeView) IsAttached(id core.MarkerID) bool {
	_, ok := v.markers[id]
	return ok
}

// detach drops every marker, as if the map went away underneath the drivers.
func (v *fakeView) detach() {
	v.markers = make(map[core.MarkerID]core.LatLng)
	v.styles = make(map[core.MarkerID]core.Style)
}

func (v *fakeView) only() (core.MarkerID, core.LatLng, bool) {
	for id, pos := range v.markers {
		return id, pos, len(v.markers) == 1
	}
	return 0, core.LatLng{}, false
}
