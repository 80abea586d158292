package commands

import (
	"context"
	"testing"
)

func TestTelemetryConfigDefaults(t *testing.T) {
	t.Setenv("BB_METRICS_ADDR", "")
	t.Setenv("BB_TRACE_EXPORTER", "")

	cfg := telemetryConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should stay off without BB_METRICS_ADDR")
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing should stay off without BB_TRACE_EXPORTER")
	}
}

func TestTelemetryConfigEnvOverrides(t *testing.T) {
	t.Setenv("BB_METRICS_ADDR", ":9191")
	t.Setenv("BB_TRACE_EXPORTER", "stdout")
	t.Setenv("BB_TRACE_ENDPOINT", "localhost:4317")

	cfg := telemetryConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddress != ":9191" {
		t.Errorf("metrics not enabled on BB_METRICS_ADDR: %+v", cfg.Metrics)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("tracing not enabled on BB_TRACE_EXPORTER: %+v", cfg.Tracing)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("endpoint = %q, want localhost:4317", cfg.Tracing.Endpoint)
	}
}

func TestNewControllerCarriesTelemetry(t *testing.T) {
	t.Setenv("BB_HOME", t.TempDir())
	t.Setenv("BB_METRICS_ADDR", "")
	t.Setenv("BB_TRACE_EXPORTER", "")

	controller, cleanup, err := newController(context.Background())
	if err != nil {
		t.Fatalf("newController: %v", err)
	}
	defer cleanup()

	tel := controller.Telemetry()
	if tel == nil {
		t.Fatal("controller built without a telemetry bundle")
	}
	if tel.Metrics == nil || tel.Events == nil || tel.Tracer == nil {
		t.Errorf("telemetry bundle incomplete: metrics=%v events=%v tracer=%v",
			tel.Metrics != nil, tel.Events != nil, tel.Tracer != nil)
	}
}
