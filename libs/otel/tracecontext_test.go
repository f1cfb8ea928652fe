package otelx

import (
	"context"
	"testing"
)

func TestSpanIDsRoundTrip(t *testing.T) {
	if tid, sid := SpanIDs(context.Background()); tid != "" || sid != "" {
		t.Fatalf("expected empty ids, got %q %q", tid, sid)
	}

	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	spanID := "00f067aa0ba902b7"
	ctx := ContextWithSpanIDs(context.Background(), traceID, spanID)

	tid, sid := SpanIDs(ctx)
	if tid != traceID || sid != spanID {
		t.Fatalf("ids mismatch: %q %q", tid, sid)
	}
}

func TestContextWithSpanIDsIgnoresGarbage(t *testing.T) {
	ctx := ContextWithSpanIDs(context.Background(), "nope", "nope")
	if tid, _ := SpanIDs(ctx); tid != "" {
		t.Fatalf("expected no span, got %q", tid)
	}
}

func TestConfigFromEnvDisabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	cfg, err := ConfigFromEnv("svc")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("expected invalid ratio to fall back to 1, got %v", cfg.SampleRatio)
	}
}

func TestConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TIMEOUT", "soon")
	if _, err := ConfigFromEnv("svc"); err == nil {
		t.Fatal("expected parse error")
	}
}
