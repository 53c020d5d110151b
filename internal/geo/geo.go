package geo

import (
	"errors"
	"fmt"

	"github.com/fleetview/animator/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Stored geometries are always EPSG:3857. SQLite has no spatial awareness, so
// points are kept as WKB and read back through geom's Scan.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Point3857 projects a WGS84 coordinate to a web mercator point.
func Point3857(ll core.LatLng) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(ll.Lng, ll.Lat, 0)
	p, err := geom.XY{X: x, Y: y}.AsPoint()
	if err != nil {
		return geom.Point{}, fmt.Errorf("projecting %v: %w", ll, err)
	}
	return p, nil
}

// LatLngFrom3857 converts a stored web mercator point back to WGS84.
func LatLngFrom3857(p geom.Point) (core.LatLng, error) {
	xy, ok := p.XY()
	if !ok {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(3857, 4326)
	lng, lat, _ := f(xy.X, xy.Y, 0)
	return core.LatLng{Lat: lat, Lng: lng}, nil
}

// LineString3857 builds the projected line through every waypoint of path.
func LineString3857(path core.Path) (geom.LineString, error) {
	if len(path) < 2 {
		return geom.LineString{}, fmt.Errorf("line needs at least 2 points, got %d", len(path))
	}
	f := wgs84.EPSG().Transform(4326, 3857)
	flat := make([]float64, 0, len(path)*2)
	for _, ll := range path {
		x, y, _ := f(ll.Lng, ll.Lat, 0)
		flat = append(flat, x, y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// ValidLatLng reports whether ll lies within WGS84 bounds.
func ValidLatLng(ll core.LatLng) bool {
	return ll.Lat >= -90 && ll.Lat <= 90 && ll.Lng >= -180 && ll.Lng <= 180
}
