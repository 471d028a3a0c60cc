package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "chainprobe", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "tip advanced", "number", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "chainprobe" {
		t.Errorf("expected service chainprobe, got %v", entry["service"])
	}
	if entry["msg"] != "tip advanced" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if entry["trace_id"] != "abc123" {
		t.Errorf("expected trace_id abc123, got %v", entry["trace_id"])
	}
	if file, _ := entry["file"].(string); !strings.HasPrefix(file, "logger_test.go:") {
		t.Errorf("expected caller file logger_test.go, got %q", file)
	}
}

func TestLogger_RespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "chainprobe", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.Error(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected error entry, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("expected no trace_id without an active span, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
