package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request is a single JSON POST.
type Request interface {
	SetBody(body any) Request
	SetResult(result any) Request
	Post(ctx context.Context) (*Response, error)
}

// Response carries the status and the already read body.
type Response struct {
	StatusCode int
	body       []byte
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// IsError reports a status >= 400.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

type request struct {
	client *InstrumentedClient
	check  ResponseErrorHandler
	attrs  []attribute.KeyValue
	body   any
	result any
}

func (r *request) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *request) SetResult(result any) Request {
	r.result = result
	return r
}

// Post sends the body and decodes a successful response into the result.
func (r *request) Post(ctx context.Context) (*Response, error) {
	ctx, span := r.client.tracer.Start(ctx, "http.post",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("provider", r.client.provider)}, r.attrs...)...),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.do(ctx)
	r.client.record(ctx, r.attrs, time.Since(start), err == nil)

	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			span.SetAttributes(attribute.Bool("request.timeout", true))
		}
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (r *request) do(ctx context.Context) (*Response, error) {
	payload, err := json.Marshal(r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.client.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := r.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	resp := &Response{StatusCode: httpResp.StatusCode, body: body}

	if r.check != nil {
		if err := r.check(resp.StatusCode, body); err != nil {
			return resp, err
		}
	} else if resp.IsError() {
		return resp, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if r.result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, r.result); err != nil {
			return resp, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return resp, nil
}
