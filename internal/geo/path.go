package geo

import (
	"encoding/json"
	"fmt"

	"github.com/fleetview/animator/pkg/core"
	"github.com/twpayne/go-polyline"
)

// ParsePath parses a JSON array of [lat, lng] pairs.
// Input format: "[[lat1,lng1],[lat2,lng2],...]"
func ParsePath(input string) (core.Path, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse path JSON: %w", err)
	}
	return PathFromCoords(coords)
}

// PathFromCoords validates [lat, lng] pairs and builds a path.
func PathFromCoords(coords [][]float64) (core.Path, error) {
	path := make(core.Path, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		ll := core.LatLng{Lat: coord[0], Lng: coord[1]}
		if !ValidLatLng(ll) {
			return nil, fmt.Errorf("coordinate %d: %w", i, ErrInvalidCoordinates)
		}
		path[i] = ll
	}
	return path, nil
}

// DecodePolyline decodes a Google encoded polyline.
func DecodePolyline(encoded string) (core.Path, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("failed to decode polyline: %d trailing bytes", len(rest))
	}
	return PathFromCoords(coords)
}

// EncodePolyline encodes path as a Google encoded polyline.
func EncodePolyline(path core.Path) string {
	return string(polyline.EncodeCoords(path.Pairs()))
}
