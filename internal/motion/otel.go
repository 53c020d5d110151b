package motion

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/fleetview/animator/internal/motion"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	frames  metric.Int64Counter
	placed  metric.Int64Counter
	removed metric.Int64Counter
	active  metric.Int64UpDownCounter
}

// metrics returns the package instruments. Creation failures fall back to
// no-op instruments so animation never depends on telemetry.
var metrics = sync.OnceValue(func() *instruments {
	m := meter()
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	ins := &instruments{}
	var err error

	if ins.frames, err = m.Int64Counter("motion.frames",
		metric.WithDescription("Frames rendered by vehicle drivers")); err != nil {
		ins.frames, _ = fallback.Int64Counter("motion.frames")
	}
	if ins.placed, err = m.Int64Counter("motion.markers.placed",
		metric.WithDescription("Markers placed on the host view")); err != nil {
		ins.placed, _ = fallback.Int64Counter("motion.markers.placed")
	}
	if ins.removed, err = m.Int64Counter("motion.markers.removed",
		metric.WithDescription("Markers removed from the host view")); err != nil {
		ins.removed, _ = fallback.Int64Counter("motion.markers.removed")
	}
	if ins.active, err = m.Int64UpDownCounter("motion.drivers.active",
		metric.WithDescription("Drivers currently running")); err != nil {
		ins.active, _ = fallback.Int64UpDownCounter("motion.drivers.active")
	}
	return ins
})
