package geo

import (
	"math"
	"testing"

	"github.com/fleetview/animator/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

func TestPoint3857_Origin(t *testing.T) {
	p, err := Point3857(core.LatLng{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	xy, ok := p.XY()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if xy.X > 1e-6 || xy.X < -1e-6 || xy.Y > 1e-6 || xy.Y < -1e-6 {
		t.Errorf("expected origin, got %v", xy)
	}
}

func TestPoint3857_RoundTrip(t *testing.T) {
	in := core.LatLng{Lat: 24.8607, Lng: 67.0011}
	p, err := Point3857(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	xy, _ := p.XY()
	if xy.X < 7_400_000 || xy.X > 7_500_000 {
		t.Errorf("unexpected X=%f", xy.X)
	}

	out, err := LatLngFrom3857(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := out.Lat - in.Lat; d > 1e-7 || d < -1e-7 {
		t.Errorf("lat drifted: %f vs %f", out.Lat, in.Lat)
	}
	if d := out.Lng - in.Lng; d > 1e-7 || d < -1e-7 {
		t.Errorf("lng drifted: %f vs %f", out.Lng, in.Lng)
	}
}

func TestPoint3857_NaN(t *testing.T) {
	if _, err := Point3857(core.LatLng{Lat: math.NaN(), Lng: 67}); err == nil {
		t.Error("expected error for NaN latitude")
	}
}

func TestLatLngFrom3857_Empty(t *testing.T) {
	_, err := LatLngFrom3857(geom.NewEmptyPoint(geom.DimXY))
	if err != ErrInvalidCoordinates {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestLineString3857(t *testing.T) {
	ls, err := LineString3857(core.Path{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := ls.Coordinates().Length(); n != 3 {
		t.Errorf("expected 3 points, got %d", n)
	}

	if _, err := LineString3857(core.Path{{}}); err == nil {
		t.Error("expected error for single point")
	}
}

func TestValidLatLng(t *testing.T) {
	tests := []struct {
		ll   core.LatLng
		want bool
	}{
		{core.LatLng{Lat: 24.86, Lng: 67.0}, true},
		{core.LatLng{Lat: -90, Lng: 180}, true},
		{core.LatLng{Lat: 91}, false},
		{core.LatLng{Lng: -181}, false},
	}
	for _, tt := range tests {
		if got := ValidLatLng(tt.ll); got != tt.want {
			t.Errorf("ValidLatLng(%v) = %v, want %v", tt.ll, got, tt.want)
		}
	}
}
