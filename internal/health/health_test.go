package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func TestHealth_AllHealthy(t *testing.T) {
	s := NewServer(0, "v1", &mockLogger{})
	s.RegisterCheck("chain", func(context.Context) (bool, string) { return true, "streaming" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != "ok" || status.Version != "v1" {
		t.Errorf("unexpected status %+v", status)
	}
	if c := status.Checks["chain"]; !c.Healthy || c.Message != "streaming" {
		t.Errorf("unexpected chain check %+v", c)
	}
}

func TestHealth_Degraded(t *testing.T) {
	s := NewServer(0, "v1", &mockLogger{})
	s.RegisterCheck("chain", func(context.Context) (bool, string) { return true, "" })
	s.RegisterCheck("gossip", func(context.Context) (bool, string) { return false, "0 peers" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected /ready 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected /live 200, got %d", rec.Code)
	}
}

func TestEvaluate_SlowCheckIsUnhealthy(t *testing.T) {
	s := NewServer(0, "v1", &mockLogger{})
	s.RegisterCheck("report_bus", func(context.Context) (bool, string) { return true, "backlog 0/16" })
	release := make(chan struct{})
	defer close(release)
	s.RegisterCheck("postgres", func(context.Context) (bool, string) {
		<-release
		return true, "late"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, ok := s.Evaluate(ctx)
	if ok {
		t.Fatal("expected overall failure")
	}
	if c := results["postgres"]; c.Healthy || c.Message != "check timed out" {
		t.Errorf("unexpected postgres result %+v", c)
	}
	if c := results["report_bus"]; !c.Healthy {
		t.Errorf("unexpected report_bus result %+v", c)
	}
}
