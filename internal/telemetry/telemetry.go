// Package telemetry builds the meter provider behind the lifecycle
// counters.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceName identifies the bridge in exported metrics.
const ServiceName = "imageview-bridge"

// Provider hands out the bridge's meter and flushes it on shutdown.
type Provider struct {
	meter    metric.Meter
	shutdown func(context.Context) error
}

// Meter returns the meter for lifecycle counters.
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes and stops the exporter, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// NewReader creates a metrics reader for the named exporter.
// Supported exporters: stdout (written to w), none
func NewReader(name string, w io.Writer, interval time.Duration) (sdkmetric.Reader, error) {
	switch name {
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)), nil

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}

// New sets up metrics for the named exporter. With "none" the returned
// provider uses the no-op meter and Shutdown does nothing.
func New(ctx context.Context, exporter string, w io.Writer, interval time.Duration, version string) (*Provider, error) {
	reader, err := NewReader(exporter, w, interval)
	if err != nil {
		return nil, err
	}
	if reader == nil {
		return &Provider{meter: noop.NewMeterProvider().Meter(ServiceName)}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return &Provider{
		meter:    mp.Meter(ServiceName),
		shutdown: mp.Shutdown,
	}, nil
}
