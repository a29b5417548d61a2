package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	issued     metric.Int64Counter
	superseded metric.Int64Counter
	noop       metric.Int64Counter
	forwarded  metric.Int64Counter
	dropped    metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	issued, err := meter.Int64Counter(
		"imageview.requests.issued",
		metric.WithDescription("Requests issued to the engine"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	superseded, err := meter.Int64Counter(
		"imageview.requests.superseded",
		metric.WithDescription("In-flight requests disposed by a reconfiguration or teardown"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	noop, err := meter.Int64Counter(
		"imageview.requests.noop",
		metric.WithDescription("Reconfigurations that produced an unchanged descriptor"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	forwarded, err := meter.Int64Counter(
		"imageview.events.forwarded",
		metric.WithDescription("Engine callbacks forwarded to the consumer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"imageview.events.dropped",
		metric.WithDescription("Stale or duplicate engine callbacks discarded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		issued:     issued,
		superseded: superseded,
		noop:       noop,
		forwarded:  forwarded,
		dropped:    dropped,
	}, nil
}

func (m *metrics) inc(counter metric.Int64Counter) {
	counter.Add(context.Background(), 1)
}

func (m *metrics) event(counter metric.Int64Counter, name EventName) {
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", string(name))))
}
