package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStartOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	var buf bytes.Buffer
	tel.Logger = NewLoggerTo(&buf, cfg.Logging)

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Fatal("expected telemetry in context")
	}

	op := StartOperation(ctx, "cli.set", AttrEntityID.String("switch.lamp"))
	if op.Span == nil {
		t.Fatal("expected a span")
	}
	if FromContext(op.Ctx) != op.Logger {
		t.Error("expected the operation logger in the operation context")
	}
	op.End(errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, `"operation":"cli.set"`) || !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("unexpected log output %s", out)
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "noop")
	if op.Span != nil {
		t.Error("expected no span without telemetry")
	}
	if op.Ctx != context.Background() {
		t.Error("expected the original context")
	}
	op.End(nil)
}
