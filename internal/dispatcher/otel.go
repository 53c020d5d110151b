package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fleetview/animator/internal/dispatcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	queued   metric.Int64ObservableGauge
	handled  metric.Int64Counter
	failed   metric.Int64Counter
	dropped  metric.Int64Counter
	duration metric.Float64Histogram
}

// newMetrics creates the command instruments. depth reports the queue
// length of every buffered command when the gauge is collected.
func newMetrics(m metric.Meter, depth func(func(command string, n int))) (*metrics, error) {
	var (
		ms  metrics
		err error
	)
	if ms.queued, err = m.Int64ObservableGauge("animator.commands.queued",
		metric.WithDescription("Commands waiting in a buffered handler queue")); err != nil {
		return nil, fmt.Errorf("creating queued gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		depth(func(command string, n int) {
			o.ObserveInt64(ms.queued, int64(n), commandAttr(command))
		})
		return nil
	}, ms.queued); err != nil {
		return nil, fmt.Errorf("registering queued callback: %w", err)
	}
	if ms.handled, err = m.Int64Counter("animator.commands.handled",
		metric.WithDescription("Commands run by their handler")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if ms.failed, err = m.Int64Counter("animator.commands.failed",
		metric.WithDescription("Commands whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if ms.dropped, err = m.Int64Counter("animator.commands.dropped",
		metric.WithDescription("Commands refused because their queue was full")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if ms.duration, err = m.Float64Histogram("animator.commands.duration",
		metric.WithDescription("Time spent in command handlers"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &ms, nil
}

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}
