package apm

import (
	"context"
	"errors"
	"testing"
)

type mockLogger struct{ warned int }

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               { m.warned++ }
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func TestNewTraceProvider_UnknownFallsBackToEmpty(t *testing.T) {
	log := &mockLogger{}

	tp, err := NewTraceProvider("chainprobe", WithProvider("jaeger", "", log))
	if err != nil {
		t.Fatalf("NewTraceProvider failed: %v", err)
	}
	if _, ok := tp.(emptyTraceProvider); !ok {
		t.Errorf("expected empty provider, got %T", tp)
	}
	if log.warned != 1 {
		t.Errorf("expected one warning, got %d", log.warned)
	}
	if err := tp.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNewTraceProvider_Console(t *testing.T) {
	tp, err := NewTraceProvider("chainprobe", WithProvider(ConsoleProvider, "", &mockLogger{}))
	if err != nil {
		t.Fatalf("NewTraceProvider failed: %v", err)
	}
	defer tp.Stop()

	_, span := NewTracer("test").StartSpanFromContext(context.Background(), "probe")
	if !span.SpanContext().IsValid() {
		t.Error("expected a valid span context from the installed provider")
	}
	span.NoticeError(errors.New("boom"))
	span.End()
}
