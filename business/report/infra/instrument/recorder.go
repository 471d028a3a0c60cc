// Package instrument mirrors metric events into OpenTelemetry instruments so
// they can be scraped alongside the process metrics.
package instrument

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/report/domain"
)

// Recorder is an app.Writer backed by OTEL instruments.
type Recorder struct {
	network attribute.KeyValue

	reorgs          metric.Int64Counter
	attachedLength  metric.Int64Histogram
	propagation     metric.Float64Histogram
	highLatency     metric.Int64Counter
	highLatencyTime metric.Float64Histogram
	peers           metric.Int64Gauge
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter, network string) (*Recorder, error) {
	r := &Recorder{network: attribute.String("network", network)}

	var err error
	r.reorgs, err = meter.Int64Counter(
		"chainprobe_reorganizations_total",
		metric.WithDescription("Chain reorganizations observed"),
	)
	if err != nil {
		return nil, err
	}

	r.attachedLength, err = meter.Int64Histogram(
		"chainprobe_reorganization_attached_length",
		metric.WithDescription("Blocks attached by a reorganization"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21, 50, 100),
	)
	if err != nil {
		return nil, err
	}

	r.propagation, err = meter.Float64Histogram(
		"chainprobe_propagation_seconds",
		metric.WithDescription("Time for a message to reach a share of live peers"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32),
	)
	if err != nil {
		return nil, err
	}

	r.highLatency, err = meter.Int64Counter(
		"chainprobe_high_latency_total",
		metric.WithDescription("Late compact block deliveries"),
	)
	if err != nil {
		return nil, err
	}

	r.highLatencyTime, err = meter.Float64Histogram(
		"chainprobe_high_latency_seconds",
		metric.WithDescription("Delay of late compact block deliveries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(8, 10, 15, 20, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	r.peers, err = meter.Int64Gauge(
		"chainprobe_peers",
		metric.WithDescription("Live peers"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Name implements app.Writer.
func (r *Recorder) Name() string { return "instrument" }

// Write implements app.Writer.
func (r *Recorder) Write(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.Reorganization:
		attrs := metric.WithAttributes(r.network)
		r.reorgs.Add(ctx, 1, attrs)
		r.attachedLength.Record(ctx, int64(e.AttachedLength), attrs)
	case domain.Propagation:
		r.propagation.Record(ctx, e.TimeInterval.Seconds(), metric.WithAttributes(
			r.network,
			attribute.String("message_type", string(e.MessageType)),
			attribute.Int("percentile", e.Percentile),
		))
	case domain.HighLatency:
		attrs := metric.WithAttributes(r.network)
		r.highLatency.Add(ctx, 1, attrs)
		r.highLatencyTime.Record(ctx, e.TimeInterval.Seconds(), attrs)
	case domain.PeerCount:
		r.peers.Record(ctx, int64(e.PeersTotal), metric.WithAttributes(r.network))
	}
	return nil
}
