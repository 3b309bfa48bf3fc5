package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Info(context.Background(), "charge created",
		String("dependency", "gateway"),
		Int("attempt", 2),
		Duration("latency_ms", 1500*time.Millisecond))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "info" || entry["msg"] != "charge created" {
		t.Errorf("entry = %v", entry)
	}
	if entry["dependency"] != "gateway" {
		t.Errorf("dependency = %v", entry["dependency"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v", entry["attempt"])
	}
	if entry["latency_ms"] != float64(1500) {
		t.Errorf("latency_ms = %v", entry["latency_ms"])
	}
	if entry["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug line")
	logger.Info(ctx, "info line")
	logger.Warn(ctx, "warn line")
	logger.Error(ctx, "error line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2 (warn and error only): %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "warn line") || !strings.Contains(lines[1], "error line") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLogger_ErrField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "charge failed", Err(errors.New("card declined")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["error"] != "card declined" {
		t.Errorf("error = %v", entry["error"])
	}

	if f := Err(nil); f.Value != nil {
		t.Errorf("Err(nil).Value = %v, want nil", f.Value)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogLevelString(t *testing.T) {
	for _, tt := range []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	} {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	// Must not panic with nil values.
	logger := NewNopLogger()
	logger.Info(context.Background(), "ignored", Err(nil))
}
