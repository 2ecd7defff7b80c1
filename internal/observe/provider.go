package observe

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var attributeEncoder = attribute.DefaultEncoder()

// Provider is an in-process meter provider whose counters can be read
// back for the control socket status reply.
type Provider struct {
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// InitProvider builds a Provider and registers it as the global provider.
func InitProvider(serviceVersion string) *Provider {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("dsnbridge"),
		semconv.ServiceVersion(serviceVersion),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	return &Provider{mp: mp, reader: reader}
}

// NewProvider builds a Provider without touching the global provider.
func NewProvider() *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader: reader,
	}
}

// MeterProvider exposes the SDK provider for NewMetrics.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.mp
}

// Counter is one summed counter series.
type Counter struct {
	Name  string
	Attrs string
	Value int64
}

func (c Counter) String() string {
	if c.Attrs == "" {
		return fmt.Sprintf("%s=%d", c.Name, c.Value)
	}
	return fmt.Sprintf("%s{%s}=%d", c.Name, c.Attrs, c.Value)
}

// Counters collects every int64 sum series, sorted by name then attributes.
func (p *Provider) Counters(ctx context.Context) ([]Counter, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var out []Counter
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out = append(out, Counter{
					Name:  m.Name,
					Attrs: dp.Attributes.Encoded(attributeEncoder),
					Value: dp.Value,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Attrs < out[j].Attrs
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
