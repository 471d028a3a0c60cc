// Package httpclient provides an OTEL-instrumented client for JSON-RPC
// endpoints reached over plain HTTP POST.
package httpclient

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type clientOptions struct {
	baseURL         string
	providerName    string
	requestTimeout  time.Duration
	maxConnsPerHost int
	meterProvider   metric.MeterProvider
	tracer          trace.Tracer
}

// ClientOption configures an InstrumentedClient.
type ClientOption func(*clientOptions)

func newClientOptions(opts ...ClientOption) *clientOptions {
	o := &clientOptions{
		providerName:    "default",
		requestTimeout:  defaultRequestTimeout,
		maxConnsPerHost: defaultMaxConnsPerHost,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithBaseURL sets the endpoint every request is posted to.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithProviderName labels metrics and spans with the node kind.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) {
		if name != "" {
			o.providerName = name
		}
	}
}

// WithRequestTimeout bounds a single round trip.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.requestTimeout = timeout
		}
	}
}

// WithMaxConnsPerHost caps concurrent connections to the endpoint.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxConnsPerHost = n
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) {
		o.meterProvider = mp
	}
}

// WithTracer overrides the tracer used for request spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(o *clientOptions) {
		o.tracer = tracer
	}
}

type requestOptions struct {
	check ResponseErrorHandler
	attrs []attribute.KeyValue
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// ResponseErrorHandler decides whether a response is a failure. Without one
// any status >= 400 is.
type ResponseErrorHandler func(statusCode int, body []byte) error

// WithResponseErrorHandler replaces the default status check.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(o *requestOptions) {
		o.check = handler
	}
}

// WithAttributes adds metric attributes to the request, e.g. the RPC method.
func WithAttributes(attrs ...attribute.KeyValue) RequestOption {
	return func(o *requestOptions) {
		o.attrs = append(o.attrs, attrs...)
	}
}
