package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainprobe/internal/apperror"
)

const (
	instrumentationName = "github.com/fd1az/chainprobe/internal/httpclient"

	defaultDialKeepAlive   = 30 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 4
	defaultIdleConnTimeout = 90 * time.Second

	// Node responses are single headers or blocks.
	maxResponseBytes = 32 << 20
)

// Client builds requests against one endpoint.
type Client interface {
	NewRequest(opts ...RequestOption) Request
}

// InstrumentedClient posts JSON to a fixed endpoint with OTEL transport
// tracing, a request counter and a latency histogram.
type InstrumentedClient struct {
	http     *http.Client
	baseURL  string
	provider string
	tracer   trace.Tracer

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

var _ Client = (*InstrumentedClient)(nil)

// NewInstrumentedClient creates a client. WithBaseURL is required.
func NewInstrumentedClient(opts ...ClientOption) (*InstrumentedClient, error) {
	o := newClientOptions(opts...)
	if o.baseURL == "" {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("httpclient: base url is required"))
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost: o.maxConnsPerHost,
		MaxConnsPerHost:     o.maxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}

	c := &InstrumentedClient{
		http: &http.Client{
			Timeout: o.requestTimeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		baseURL:  o.baseURL,
		provider: o.providerName,
		tracer:   o.tracer,
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", o.providerName)))

	var err error
	c.requests, err = meter.Int64Counter(
		"http_client_requests_total",
		metric.WithDescription("Requests posted to the node endpoint"),
	)
	if err != nil {
		return nil, err
	}
	c.latency, err = meter.Float64Histogram(
		"http_client_request_duration_seconds",
		metric.WithDescription("Round trip time of node requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// NewRequest starts a request to the client's endpoint.
func (c *InstrumentedClient) NewRequest(opts ...RequestOption) Request {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return &request{client: c, check: o.check, attrs: o.attrs}
}

func (c *InstrumentedClient) record(ctx context.Context, attrs []attribute.KeyValue, elapsed time.Duration, success bool) {
	set := metric.WithAttributes(append(attrs, attribute.Bool("success", success))...)
	c.requests.Add(ctx, 1, set)
	c.latency.Record(ctx, elapsed.Seconds(), set)
}
