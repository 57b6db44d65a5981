package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	otelexport "github.com/lewadaa/task-manager/metrics/export/otel"
)

// collectCounters reads the engine counters once through the OTel exporter.
func collectCounters(ctx context.Context, source otelexport.MetricsSource) (map[string]int64, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	exp, err := otelexport.New(provider.Meter("taskmanager-loadtest"), source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = exp.Close() }()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out, nil
}

func printCounters(counters map[string]int64) {
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		if v := counters[name]; v != 0 {
			fmt.Printf("%s=%d\n", name, v)
		}
	}
}
