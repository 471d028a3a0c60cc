package instrument

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fd1az/chainprobe/business/report/domain"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorder_Write(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	r, err := NewRecorder(provider.Meter("test"), "mainnet")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	events := []domain.Event{
		domain.Reorganization{Time: now, AttachedLength: 3},
		domain.Reorganization{Time: now, AttachedLength: 1},
		domain.Propagation{Time: now, MessageType: domain.MessageCompactBlock, Percentile: 99, TimeInterval: 3 * time.Second},
		domain.HighLatency{Time: now, PeerAddress: "a", TimeInterval: 9 * time.Second},
		domain.PeerCount{Time: now, PeersTotal: 5},
		domain.PeerCount{Time: now, PeersTotal: 4},
	}
	for _, ev := range events {
		if err := r.Write(ctx, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	metrics := collect(t, reader)

	reorgs, ok := metrics["chainprobe_reorganizations_total"].Data.(metricdata.Sum[int64])
	if !ok || len(reorgs.DataPoints) != 1 || reorgs.DataPoints[0].Value != 2 {
		t.Errorf("expected 2 reorganizations, got %+v", metrics["chainprobe_reorganizations_total"].Data)
	}

	lengths, ok := metrics["chainprobe_reorganization_attached_length"].Data.(metricdata.Histogram[int64])
	if !ok || len(lengths.DataPoints) != 1 || lengths.DataPoints[0].Sum != 4 {
		t.Errorf("expected attached length sum 4, got %+v", metrics["chainprobe_reorganization_attached_length"].Data)
	}

	prop, ok := metrics["chainprobe_propagation_seconds"].Data.(metricdata.Histogram[float64])
	if !ok || len(prop.DataPoints) != 1 || prop.DataPoints[0].Sum != 3 {
		t.Errorf("expected one propagation of 3s, got %+v", metrics["chainprobe_propagation_seconds"].Data)
	}
	if ok && len(prop.DataPoints) == 1 {
		if v, found := prop.DataPoints[0].Attributes.Value("percentile"); !found || v.AsInt64() != 99 {
			t.Errorf("expected percentile attribute 99, got %v", v)
		}
	}

	late, ok := metrics["chainprobe_high_latency_total"].Data.(metricdata.Sum[int64])
	if !ok || len(late.DataPoints) != 1 || late.DataPoints[0].Value != 1 {
		t.Errorf("expected 1 high latency event, got %+v", metrics["chainprobe_high_latency_total"].Data)
	}

	peers, ok := metrics["chainprobe_peers"].Data.(metricdata.Gauge[int64])
	if !ok || len(peers.DataPoints) != 1 || peers.DataPoints[0].Value != 4 {
		t.Errorf("expected peers gauge at 4, got %+v", metrics["chainprobe_peers"].Data)
	}
}
