package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fleetview/animator/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoLine is returned when a GeoJSON document holds no line geometry.
var ErrNoLine = errors.New("geojson has no line geometry")

// PathFromGeoJSON extracts a path from a FeatureCollection, Feature or bare
// geometry. The first LineString found wins; a Polygon contributes its outer
// ring without the closing point. GeoJSON positions are [lng, lat].
func PathFromGeoJSON(data []byte) (core.Path, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		for _, f := range fc.Features {
			if p, ok := pathFromGeometry(f.Geometry); ok {
				return p, nil
			}
		}
		return nil, ErrNoLine
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature: %w", err)
		}
		if p, ok := pathFromGeometry(f.Geometry); ok {
			return p, nil
		}
		return nil, ErrNoLine
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geometry: %w", err)
		}
		if p, ok := pathFromGeometry(g.Geometry()); ok {
			return p, nil
		}
		return nil, ErrNoLine
	}
}

func pathFromGeometry(g orb.Geometry) (core.Path, bool) {
	switch g := g.(type) {
	case orb.LineString:
		return pathFromPoints(g), true
	case orb.MultiLineString:
		if len(g) > 0 {
			return pathFromPoints(g[0]), true
		}
	case orb.Polygon:
		if len(g) > 0 {
			ring := g[0]
			if len(ring) > 1 && ring.Closed() {
				ring = ring[:len(ring)-1]
			}
			return pathFromPoints(ring), true
		}
	}
	return nil, false
}

func pathFromPoints(pts []orb.Point) core.Path {
	path := make(core.Path, len(pts))
	for i, pt := range pts {
		path[i] = core.LatLng{Lat: pt.Lat(), Lng: pt.Lon()}
	}
	return path
}

// LineString converts path to an orb line in [lng, lat] order.
func LineString(path core.Path) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, ll := range path {
		ls[i] = orb.Point{ll.Lng, ll.Lat}
	}
	return ls
}

// PathFeature wraps path as a GeoJSON feature tagged with its class.
func PathFeature(class core.VehicleClass, path core.Path) *geojson.Feature {
	f := geojson.NewFeature(LineString(path))
	f.Properties["class"] = string(class)
	return f
}
