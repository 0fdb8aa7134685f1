package commands

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds request bodies of the HTTP API.
const maxRequestBody = 1 << 20

// server exposes the actors over HTTP. The actor set is swapped atomically
// on configuration reload.
type server struct {
	actors  atomic.Pointer[config.Actors]
	reader  engine.StateReader
	metrics *telemetry.Metrics
	tel     *telemetry.Telemetry
	logger  zerolog.Logger
}

// setValueRequest carries a scalar or a list; SetValue normalizes either.
type setValueRequest struct {
	Value interface{} `json:"value"`
}

type setValueResponse struct {
	EntityID string       `json:"entity_id"`
	Value    engine.Tuple `json:"value"`
	Executed bool         `json:"executed"`
}

type stateRequest struct {
	Attributes map[string]interface{} `json:"attributes"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newServer(actors *config.Actors, reader engine.StateReader, tel *telemetry.Telemetry, logger zerolog.Logger) *server {
	s := &server{
		reader:  reader,
		metrics: tel.Metrics,
		tel:     tel,
		logger:  logger.With().Str("component", "http-api").Logger(),
	}
	s.actors.Store(actors)
	return s
}

// swap replaces the served actors.
func (s *server) swap(actors *config.Actors) {
	s.actors.Store(actors)
	s.metrics.SetActorRules(actors.RuleCounts())
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/actors", s.handleListActors)
	mux.HandleFunc("GET /v1/actors/{entity}", s.handleGetActor)
	mux.HandleFunc("POST /v1/actors/{entity}/value", s.handleSetValue)
	mux.HandleFunc("POST /v1/actors/{entity}/state", s.handleState)
	mux.HandleFunc("POST /v1/actors/{entity}/refresh", s.handleRefresh)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"actors": s.actors.Load().Len(),
	})
}

func (s *server) handleListActors(w http.ResponseWriter, _ *http.Request) {
	actors := s.actors.Load()
	summaries := make([]actorSummary, 0, actors.Len())
	for _, id := range actors.EntityIDs() {
		actor, _ := actors.Get(id)
		summaries = append(summaries, summarize(actor))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *server) handleGetActor(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(actor))
}

func (s *server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req setValueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	op := telemetry.StartOperation(s.tel.WithContext(r.Context()), "http.set_value",
		telemetry.AttrEntityID.String(actor.EntityID()))
	value, executed, err := actor.SetValue(op.Ctx, req.Value)
	op.End(err)

	if err != nil {
		s.logger.Error().Err(err).Str("entity_id", actor.EntityID()).Msg("Set value failed")
		writeError(w, statusFor(err), err)
		return
	}
	if !executed {
		writeError(w, http.StatusUnprocessableEntity, engine.NewNoMatchingRuleError(value).WithEntity(actor.EntityID()))
		return
	}

	writeJSON(w, http.StatusOK, setValueResponse{EntityID: actor.EntityID(), Value: value, Executed: true})
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req stateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, observe(actor, req.Attributes))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if s.reader == nil {
		writeError(w, http.StatusServiceUnavailable, errNoBackend)
		return
	}

	obs, err := refreshActor(r.Context(), actor, s.reader)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// actor resolves the {entity} path value, answering 404 when unknown.
func (s *server) actor(w http.ResponseWriter, r *http.Request) (*engine.Actor, bool) {
	entityID := r.PathValue("entity")
	actor, ok := s.actors.Load().Get(entityID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no actor configured for " + entityID})
		return nil, false
	}
	return actor, true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrPolicyDenied):
		return http.StatusForbidden
	case engine.IsInvalidValueType(err):
		return http.StatusBadRequest
	case engine.IsNoMatchingRule(err):
		return http.StatusUnprocessableEntity
	case engine.IsActionInvocation(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: engine.ErrorCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
