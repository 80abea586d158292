package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"zero event buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("debug"); got != zerolog.DebugLevel {
		t.Errorf("debug = %v", got)
	}
	if got := parseLogLevel("nonsense"); got != zerolog.InfoLevel {
		t.Errorf("fallback = %v, want info", got)
	}
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Must not panic.
	m.RecordOperationStarted("up")
	m.RecordOperationCompleted("up", "succeeded", time.Minute)
	m.RecordPhase("provision", time.Minute)
	m.RecordRemediationFix("reinit_upgrade")
	m.RecordTimeoutExtension()
	m.RecordSupervisedRun("apply", "succeeded")
	m.RecordDeploy("helm", "succeeded")
	m.RecordPolicyFinding("region-allowlist", "error")
	m.RecordError("provision")
	m.SetActiveEnvironments(3)
}

func TestEventPublisherDelivery(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}

	var got []LifecycleEvent
	ep.Subscribe(func(e LifecycleEvent) { got = append(got, e) }, nil)

	if err := ep.PublishOperationStarted("demo-abc123", "up"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := ep.PublishRemediationApplied("demo-abc123", "reinit_upgrade"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("delivered = %d, want 2", len(got))
	}
	if got[0].Type != EventTypeOperationStarted || got[0].EnvID != "demo-abc123" {
		t.Errorf("event = %+v", got[0])
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("ID and timestamp must be filled in")
	}
	if got[1].Level != EventLevelWarning {
		t.Errorf("remediation level = %q", got[1].Level)
	}
}

func TestEventFilters(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}

	var errorsOnly, mineOnly int
	ep.Subscribe(func(LifecycleEvent) { errorsOnly++ }, FilterByLevel(EventLevelError))
	ep.Subscribe(func(LifecycleEvent) { mineOnly++ }, FilterByEnvID("mine-000001"))

	_ = ep.PublishOperationStarted("mine-000001", "up")
	_ = ep.PublishOperationFailed("other-000002", "up", "boom")

	if errorsOnly != 1 {
		t.Errorf("errorsOnly = %d", errorsOnly)
	}
	if mineOnly != 1 {
		t.Errorf("mineOnly = %d", mineOnly)
	}
}

func TestDisabledPublisherDropsEvents(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher: %v", err)
	}
	delivered := false
	ep.Subscribe(func(LifecycleEvent) { delivered = true }, nil)

	if err := ep.PublishOperationStarted("demo", "up"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if delivered {
		t.Error("disabled publisher must not deliver")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestTelemetryBundleRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}

	ctx := tel.WithContext(context.Background())
	if FromContext(ctx) != tel {
		t.Error("FromContext did not return the installed bundle")
	}
	if FromContext(context.Background()) != nil {
		t.Error("FromContext on empty context should be nil")
	}

	phaseCtx, done := tel.StartPhase(ctx, "demo-abc123", "provision")
	if phaseCtx == nil {
		t.Fatal("phase context is nil")
	}
	done(nil)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
