// Package metrics configures the OpenTelemetry meter provider and the
// Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricProvider is the installed meter provider.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

func newReaders(ctx context.Context, cfg Config) ([]sdkmetric.Reader, error) {
	if len(cfg.Exporters) == 0 {
		cfg.Exporters = []ExporterCfg{{Exporter: OTLPExporter}}
	}

	readers := make([]sdkmetric.Reader, 0, len(cfg.Exporters))
	for _, e := range cfg.Exporters {
		switch e.Exporter {
		case PrometheusExporter:
			exp, err := prometheus.New()
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}
			readers = append(readers, exp)

		case OTLPExporter:
			var opts []otlpmetricgrpc.Option
			if e.Endpoint != "" {
				opts = append(opts, otlpmetricgrpc.WithEndpointURL(e.Endpoint))
			}
			if len(e.Headers) > 0 {
				opts = append(opts, otlpmetricgrpc.WithHeaders(e.Headers))
			}
			if e.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("otlp metric exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exp))

		default:
			return nil, fmt.Errorf("unknown metric exporter %q", e.Exporter)
		}
	}
	return readers, nil
}

// NewMetricProvider builds a meter provider and installs it globally.
func NewMetricProvider(ctx context.Context, options ...Option) (MetricProvider, error) {
	var cfg Config
	for _, opt := range options {
		opt(&cfg)
	}

	readers, err := newReaders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// ServePrometheusMetrics serves /metrics until ctx is cancelled.
func ServePrometheusMetrics(ctx context.Context, opts ...ServerOption) error {
	cfg := serverConfig{port: "9090"}
	for _, o := range opts {
		o(&cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
