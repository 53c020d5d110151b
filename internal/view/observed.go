package view

import (
	"sort"
	"time"

	"github.com/fleetview/animator/internal/motion"
	"github.com/fleetview/animator/pkg/core"
)

// Observer is told about every marker change that reaches a view.
// Implementations must not block; they run on the frame loop.
type Observer interface {
	MarkerPlaced(m core.Marker)
	MarkerMoved(s core.MarkerState)
	MarkerRemoved(d core.DeleteMarker)
}

// Observed forwards to an inner view and reports successful changes to its
// observers.
type Observed struct {
	inner     motion.HostView
	observers []Observer
	live      map[core.MarkerID]struct{}
	now       func() time.Time
}

type detacher interface {
	Detach()
}

// NewObserved wraps inner. Observers are called in the given order.
func NewObserved(inner motion.HostView, observers ...Observer) *Observed {
	return &Observed{
		inner:     inner,
		observers: observers,
		live:      make(map[core.MarkerID]struct{}),
		now:       time.Now,
	}
}

// PlaceMarker places on the inner view and reports the new marker.
func (o *Observed) PlaceMarker(pos core.LatLng, style core.Style) (core.MarkerID, error) {
	id, err := o.inner.PlaceMarker(pos, style)
	if err != nil {
		return 0, err
	}
	o.live[id] = struct{}{}
	m := core.Marker{ID: id, Style: style, Position: pos, Time: o.now()}
	for _, obs := range o.observers {
		obs.MarkerPlaced(m)
	}
	return id, nil
}

// MoveMarker moves the marker and reports the new position.
func (o *Observed) MoveMarker(id core.MarkerID, pos core.LatLng) {
	o.inner.MoveMarker(id, pos)
	s := core.MarkerState{MarkerID: id, Position: pos, Time: o.now()}
	for _, obs := range o.observers {
		obs.MarkerMoved(s)
	}
}

// RemoveMarker removes the marker and reports the removal.
func (o *Observed) RemoveMarker(id core.MarkerID) {
	o.inner.RemoveMarker(id)
	delete(o.live, id)
	o.removed(id, o.now())
}

// Detach tears down the inner view, when it supports that, and reports a
// removal for every marker placed through o that was never removed.
func (o *Observed) Detach() {
	if d, ok := o.inner.(detacher); ok {
		d.Detach()
	}
	ids := make([]core.MarkerID, 0, len(o.live))
	for id := range o.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	now := o.now()
	for _, id := range ids {
		o.removed(id, now)
	}
	o.live = make(map[core.MarkerID]struct{})
}

// Live returns how many markers placed through o are still on the view.
func (o *Observed) Live() int {
	return len(o.live)
}

func (o *Observed) removed(id core.MarkerID, at time.Time) {
	d := core.DeleteMarker{MarkerID: id, Time: at}
	for _, obs := range o.observers {
		obs.MarkerRemoved(d)
	}
}

// IsAttached asks the inner view.
func (o *Observed) IsAttached(id core.MarkerID) bool {
	return o.inner.IsAttached(id)
}

// Unwrap returns the inner view.
func (o *Observed) Unwrap() motion.HostView {
	return o.inner
}
