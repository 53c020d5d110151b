package geo

import (
	"errors"
	"fmt"

	"github.com/fleetview/animator/pkg/core"
	"github.com/jamespfennell/gtfs"
)

// ErrShapeNotFound is returned when a GTFS feed has no shape with the
// requested ID.
var ErrShapeNotFound = errors.New("gtfs shape not found")

// PathFromGTFS reads the shape shapeID from a zipped GTFS static feed. An
// empty shapeID takes the first shape of the feed.
func PathFromGTFS(feed []byte, shapeID string) (core.Path, error) {
	static, err := gtfs.ParseStatic(feed, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse gtfs feed: %w", err)
	}

	for _, shape := range static.Shapes {
		if shapeID != "" && shape.ID != shapeID {
			continue
		}
		coords := make([][]float64, len(shape.Points))
		for i, pt := range shape.Points {
			coords[i] = []float64{pt.Latitude, pt.Longitude}
		}
		return PathFromCoords(coords)
	}
	return nil, fmt.Errorf("%w: %q", ErrShapeNotFound, shapeID)
}
