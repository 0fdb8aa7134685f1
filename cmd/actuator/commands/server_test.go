package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/policy"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog"
)

type recordedCall struct {
	service string
	params  map[string]interface{}
}

type recordingInvoker struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
}

func (r *recordingInvoker) Invoke(_ context.Context, service string, params map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, recordedCall{service, params})
	return nil
}

type staticReader map[string]interface{}

func (s staticReader) ReadAttributes(context.Context, string) (map[string]interface{}, error) {
	return s, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Actors: []config.ActorConfig{
			{EntityID: "switch.lamp", Type: config.ActorTypeSwitch},
			{
				EntityID: "climate.living",
				Slots:    []config.SlotConfig{{Attribute: "hvac_mode"}, {Attribute: "temperature"}},
				Values: []config.ValueConfig{
					{
						Slots: []interface{}{"heat", "*"},
						Calls: []config.CallConfig{
							{Service: "climate/set_temperature", Data: map[string]interface{}{"temperature": "{slot1}"}},
						},
					},
					{
						Slots: []interface{}{"off"},
						Calls: []config.CallConfig{{Service: "climate/turn_off"}},
					},
				},
			},
		},
	}
}

func newTestServer(t *testing.T, inv engine.Invoker, reader engine.StateReader) *server {
	t.Helper()
	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	logger := zerolog.Nop()
	actors, err := config.Build(testConfig(), config.StaticInvoker(inv), engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return newServer(actors, reader, tel, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_SetValue(t *testing.T) {
	inv := &recordingInvoker{}
	h := newTestServer(t, inv, nil).routes()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantCalls  int
		wantError  string
	}{
		{"executes rule", "/v1/actors/climate.living/value", `{"value": ["heat", 21.5]}`, http.StatusOK, "", 1, ""},
		{"shorter value", "/v1/actors/climate.living/value", `{"value": ["off"]}`, http.StatusOK, "", 1, ""},
		{"scalar value", "/v1/actors/switch.lamp/value", `{"value": "on"}`, http.StatusOK, "", 1, ""},
		{"null value is a one-tuple", "/v1/actors/switch.lamp/value", `{"value": null}`, http.StatusUnprocessableEntity, engine.ErrCodeNoMatchingRule, 0, "value (null)"},
		{"no matching rule", "/v1/actors/climate.living/value", `{"value": ["cool", 20]}`, http.StatusUnprocessableEntity, engine.ErrCodeNoMatchingRule, 0, `value ("cool", 20)`},
		{"invalid value", "/v1/actors/climate.living/value", `{"value": [{"a": 1}]}`, http.StatusBadRequest, engine.ErrCodeInvalidValueType, 0, ""},
		{"invalid scalar", "/v1/actors/switch.lamp/value", `{"value": {"a": 1}}`, http.StatusBadRequest, engine.ErrCodeInvalidValueType, 0, ""},
		{"unknown actor", "/v1/actors/light.none/value", `{"value": ["on"]}`, http.StatusNotFound, "", 0, ""},
		{"bad body", "/v1/actors/switch.lamp/value", `{"value":`, http.StatusBadRequest, "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv.calls = nil
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				var resp errorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if resp.Code != tt.wantCode {
					t.Errorf("Expected code %s, got %s", tt.wantCode, resp.Code)
				}
				if !strings.Contains(resp.Error, tt.wantError) {
					t.Errorf("Expected error containing %q, got %q", tt.wantError, resp.Error)
				}
			}
			if len(inv.calls) != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, len(inv.calls))
			}
		})
	}
}

func TestServer_SetValueRendersSlots(t *testing.T) {
	inv := &recordingInvoker{}
	h := newTestServer(t, inv, nil).routes()

	rec := do(t, h, http.MethodPost, "/v1/actors/climate.living/value", `{"value": ["heat", 21]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp setValueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Executed || !resp.Value.Equal(engine.MustTuple("heat", 21)) {
		t.Errorf("Unexpected response %+v", resp)
	}

	call := inv.calls[0]
	if call.service != "climate/set_temperature" || call.params["temperature"] != "21" || call.params["entity_id"] != "climate.living" {
		t.Errorf("Unexpected call %+v", call)
	}
}

func TestServer_InvocationErrors(t *testing.T) {
	inv := &recordingInvoker{err: errors.New("connection refused")}
	h := newTestServer(t, inv, nil).routes()

	rec := do(t, h, http.MethodPost, "/v1/actors/switch.lamp/value", `{"value": ["on"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}

	denied := engine.NewActionInvocationError("light/turn_on", 0, 0,
		engine.NewPolicyDeniedError("light/turn_on", []string{"no"}))
	if got := statusFor(denied); got != http.StatusForbidden {
		t.Errorf("Expected 403 for policy denial, got %d", got)
	}
}

func TestServer_PolicyGuard(t *testing.T) {
	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	logger := zerolog.Nop()
	policies, err := policy.NewEngine(logger)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// No Home Assistant client: allowed calls fail with errNoBackend.
	rt := &runtime{telemetry: tel, logger: logger, policies: policies, mode: policy.ModeEnforcing}

	cfg := &config.Config{Actors: []config.ActorConfig{
		{
			EntityID: "light.desk",
			Slots:    []config.SlotConfig{{Attribute: "state"}},
			Values: []config.ValueConfig{
				{Slots: []interface{}{"on"}, Calls: []config.CallConfig{{Service: "Light.TurnOn"}}},
			},
		},
		{EntityID: "switch.fan", Type: config.ActorTypeSwitch},
	}}
	actors, err := rt.buildActors(cfg)
	if err != nil {
		t.Fatalf("buildActors failed: %v", err)
	}

	h := newServer(actors, nil, tel, logger).routes()

	rec := do(t, h, http.MethodPost, "/v1/actors/light.desk/value", `{"value": ["on"]}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/actors/switch.fan/value", `{"value": ["on"]}`)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), errNoBackend.Error()) {
		t.Errorf("Expected 502 from missing backend, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_State(t *testing.T) {
	h := newTestServer(t, &recordingInvoker{}, nil).routes()

	tests := []struct {
		name           string
		body           string
		wantValue      engine.Tuple
		wantRecognized bool
	}{
		{"full match", `{"attributes": {"hvac_mode": "heat", "temperature": 20}}`, engine.MustTuple("heat", 20), true},
		{"prefix match", `{"attributes": {"hvac_mode": "off", "temperature": 20}}`, engine.MustTuple("off"), true},
		{"unrecognized", `{"attributes": {"hvac_mode": "dry"}}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/actors/climate.living/state", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("Unexpected status %d", rec.Code)
			}
			var obs struct {
				Value      []interface{} `json:"value"`
				Recognized bool          `json:"recognized"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &obs); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if obs.Recognized != tt.wantRecognized {
				t.Errorf("Expected recognized=%v, got %v", tt.wantRecognized, obs.Recognized)
			}
			if tt.wantRecognized {
				got, err := engine.ValidateValue(obs.Value)
				if err != nil || !got.Equal(tt.wantValue) {
					t.Errorf("Expected %v, got %v", tt.wantValue, obs.Value)
				}
			}
		})
	}
}

func TestServer_Refresh(t *testing.T) {
	h := newTestServer(t, &recordingInvoker{}, staticReader{"state": "off"}).routes()
	rec := do(t, h, http.MethodPost, "/v1/actors/switch.lamp/refresh", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"recognized":true`) {
		t.Errorf("Unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	h = newTestServer(t, &recordingInvoker{}, nil).routes()
	rec = do(t, h, http.MethodPost, "/v1/actors/switch.lamp/refresh", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a state reader, got %d", rec.Code)
	}
}

func TestServer_ListAndSwap(t *testing.T) {
	srv := newTestServer(t, &recordingInvoker{}, nil)
	h := srv.routes()

	rec := do(t, h, http.MethodGet, "/v1/actors", "")
	var list []actorSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 2 || list[0].EntityID != "climate.living" || list[1].EntityID != "switch.lamp" {
		t.Fatalf("Unexpected actors %+v", list)
	}
	if len(list[1].Rules) != 2 || list[1].Slots[0] != "state" {
		t.Errorf("Unexpected switch summary %+v", list[1])
	}

	actors, err := config.Build(&config.Config{Actors: []config.ActorConfig{{EntityID: "switch.fan", Type: config.ActorTypeSwitch}}},
		config.StaticInvoker(&recordingInvoker{}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv.swap(actors)

	if rec := do(t, h, http.MethodGet, "/v1/actors/switch.lamp", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected removed actor to be gone, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/actors/switch.fan", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected new actor, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("actuator_")) {
		t.Errorf("Expected metrics output, got %d", rec.Code)
	}
}
