package otel

import (
	"context"
	"sync"
	"testing"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.Mutex
	counters map[goRiskAuth.MetricID]uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goRiskAuth.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := goRiskAuth.MetricsSnapshot{
		Counters: make(map[goRiskAuth.MetricID]uint64, len(f.counters)),
		Histograms: map[goRiskAuth.MetricID][]uint64{
			goRiskAuth.MetricAuthenticateLatency: {2, 1, 0, 0, 0, 0, 0, 0},
		},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func collect(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				out[m.Name] = data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				out[m.Name] = data.DataPoints[0].Value
			}
		}
	}
	return out
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("riskauth-test")

	src := &fakeSource{counters: map[goRiskAuth.MetricID]uint64{goRiskAuth.MetricRiskBlock: 3}, dropped: 1}
	exp, err := NewExporter(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	require.EqualValues(t, 3, got["riskauth_risk_block_total"])
	require.EqualValues(t, 1, got["riskauth_audit_dropped_total"])
	require.EqualValues(t, 2, got["riskauth_authenticate_latency_seconds_bucket_le_0_005"])
	require.EqualValues(t, 3, got["riskauth_authenticate_latency_seconds_count"])
}

func TestExporterRejectsNil(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("riskauth-test")
	_, err := NewExporter(meter, nil)
	require.ErrorIs(t, err, ErrNilSource)
	_, err = NewExporter(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("riskauth-test")
	src := &fakeSource{counters: map[goRiskAuth.MetricID]uint64{}}
	exp, err := NewExporter(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[goRiskAuth.MetricLoginSuccess] = v
			src.mu.Unlock()
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
