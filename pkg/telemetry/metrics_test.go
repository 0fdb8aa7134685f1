package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// All recorders must be safe no-ops.
	m.RecordLookup("a", true)
	m.RecordObserve("a", false, 0)
	m.RecordCall("svc", time.Second, nil)
	m.RecordConfigReload(nil)
	m.SetActorRules(map[string]int{"a": 1})

	if m.Registry() != nil {
		t.Error("expected nil registry when disabled")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMetrics_Recording(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.RecordLookup("switch.a", true)
	m.RecordLookup("switch.a", false)
	m.RecordLookup("switch.a", false)
	m.RecordCall("light/turn_on", 10*time.Millisecond, nil)
	m.RecordCall("light/turn_on", 10*time.Millisecond, errors.New("boom"))
	m.SetActorRules(map[string]int{"switch.a": 2, "light.b": 3})

	if got := testutil.ToFloat64(m.lookups.WithLabelValues("switch.a", "unmatched")); got != 2 {
		t.Errorf("expected 2 unmatched lookups, got %v", got)
	}
	if got := testutil.ToFloat64(m.callErrors.WithLabelValues("light/turn_on")); got != 1 {
		t.Errorf("expected 1 call error, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("light/turn_on", "success")); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.actors); got != 2 {
		t.Errorf("expected 2 actors, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "actuator_service_calls_total") {
		t.Error("expected service call metric in exposition")
	}
}

func TestStartMetricsServer(t *testing.T) {
	disabled, _ := NewMetrics(MetricsConfig{Enabled: false, ListenAddress: "127.0.0.1:0"})
	if srv, err := disabled.StartMetricsServer(zerolog.Nop()); srv != nil || err != nil {
		t.Errorf("expected no server when disabled, got %v, %v", srv, err)
	}

	noAddr, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := noAddr.StartMetricsServer(zerolog.Nop()); err == nil {
		t.Error("expected error without listen address")
	}
}
