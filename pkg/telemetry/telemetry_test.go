package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hutch.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	engineLogger := ComponentLogger(logger, "engine")
	engineLogger.Info().Str("container", "901").Msg("Stage completed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"component":"engine"`, `"container":"901"`, "Stage completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestNewLoggerLevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hutch.log")
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Debug().Msg("suppressed")
	logger.Warn().Msg("surfaced")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "suppressed") {
		t.Error("debug entry must be filtered at warn level")
	}
	if !strings.Contains(string(data), "surfaced") {
		t.Error("warn entry missing")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	// None of these may panic, and there is nothing to serve.
	m.StageExecuted("container", "succeeded", time.Second)
	m.StageRetries("container", 2)
	m.RunCompleted("succeeded", time.Minute)
	m.RollbackPerformed()
	m.ContainersProvisioned(3)
	m.DevicesResolved("901", 5)

	if m.Handler() != nil {
		t.Error("disabled metrics must not expose a handler")
	}

	var nilMetrics *Metrics
	nilMetrics.StageExecuted("container", "succeeded", time.Second)
	if nilMetrics.Handler() != nil {
		t.Error("nil metrics must not expose a handler")
	}
}

func TestEnabledMetricsRegisterAndServe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "openhutch"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.StageExecuted("container", "succeeded", time.Second)
	m.RunCompleted("succeeded", time.Minute)

	if m.Handler() == nil {
		t.Error("enabled metrics must expose a handler")
	}
}

func TestDisabledTracerIsUsable(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false, ServiceName: "openhutch"}, "test")
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}

	ctx, span := tracer.Start(context.Background(), "engine.Run")
	span.End()
	if ctx == nil {
		t.Error("expected a derived context")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}
