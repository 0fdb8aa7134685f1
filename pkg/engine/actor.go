package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/actuator/pkg/engine"

// Actor resolves logical values of one controlled entity against a RuleTable.
// It holds no mutable state and is safe for concurrent use.
type Actor struct {
	entityID string
	slots    []Slot
	table    *RuleTable
	invoker  Invoker
	logger   zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures an Actor.
type Option func(*Actor)

// WithLogger sets the logger used for reporting.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Actor) {
		a.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Actor) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Actor) {
		if t != nil {
			a.tracer = t
		}
	}
}

// NewActor creates an actor for entityID. table must have been built for
// exactly len(slots) slots.
func NewActor(entityID string, slots []Slot, table *RuleTable, invoker Invoker, opts ...Option) (*Actor, error) {
	if entityID == "" {
		return nil, NewConfigError("entity id is required", nil)
	}
	if table == nil {
		return nil, NewConfigError("rule table is required", nil).WithEntity(entityID)
	}
	if table.SlotCount() != len(slots) {
		return nil, NewConfigError(
			fmt.Sprintf("rule table built for %d slots, actor has %d", table.SlotCount(), len(slots)), nil).
			WithEntity(entityID)
	}
	if invoker == nil {
		return nil, NewConfigError("invoker is required", nil).WithEntity(entityID)
	}

	a := &Actor{
		entityID: entityID,
		slots:    append([]Slot(nil), slots...),
		table:    table,
		invoker:  invoker,
		logger:   log.Logger,
		recorder: noopRecorder{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().
		Str("component", "actor").
		Str("entity_id", entityID).
		Logger()

	return a, nil
}

// EntityID returns the identifier of the controlled entity.
func (a *Actor) EntityID() string {
	return a.entityID
}

// Slots returns the configured slots.
func (a *Actor) Slots() []Slot {
	return append([]Slot(nil), a.slots...)
}

// Table returns the actor's rule table.
func (a *Actor) Table() *RuleTable {
	return a.table
}

// ValidateValue normalizes a requested value into a Tuple. Sequences keep
// their length and order; any other input becomes a one-element tuple.
// Elements outside {float, int, string, null} fail with InvalidValueType.
func ValidateValue(raw interface{}) (Tuple, error) {
	switch v := raw.(type) {
	case Tuple:
		return append(Tuple{}, v...), nil
	case []Value:
		return append(Tuple{}, v...), nil
	case []interface{}:
		return TupleOf(v...)
	case nil:
		return Tuple{Null()}, nil
	}

	rv := reflect.ValueOf(raw)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return TupleOf(items...)
	}
	return TupleOf(raw)
}

// FilterSetValue checks that a rule exists for value. It returns value
// unchanged and true when supported; otherwise it reports the condition and
// returns false, and the caller must not execute.
func (a *Actor) FilterSetValue(value Tuple) (Tuple, bool) {
	matched := a.table.Matches(value)
	a.recorder.RecordLookup(a.entityID, matched)
	if !matched {
		a.logger.Error().
			Str("value", value.String()).
			Msg("Value is not known by this actor")
		return nil, false
	}
	return value, true
}

// Substitutions returns the placeholder bindings for value: slotN for every
// configured slot (null past the end of value) and entity_id.
func (a *Actor) Substitutions(value Tuple) Substitutions {
	subs := make(Substitutions, len(a.slots)+1)
	subs[EntityIDPlaceholder] = String(a.entityID)
	for i := range a.slots {
		v := Null()
		if i < len(value) {
			v = value[i]
		}
		subs[SlotPlaceholder(i)] = v
	}
	return subs
}

// RenderCalls returns the service calls value would trigger, with parameters
// fully rendered, without invoking anything.
func (a *Actor) RenderCalls(value Tuple) ([]RenderedCall, error) {
	rule, err := a.table.Lookup(value)
	if err != nil {
		return nil, err
	}
	return a.render(rule, value)
}

// RenderedCall is a Call whose parameters have been substituted.
type RenderedCall struct {
	Service string                 `json:"service"`
	Params  map[string]interface{} `json:"data"`
}

func (a *Actor) render(rule *Rule, value Tuple) ([]RenderedCall, error) {
	subs := a.Substitutions(value)
	out := make([]RenderedCall, len(rule.Calls))
	for i, call := range rule.Calls {
		params, err := subs.RenderParams(call.Data)
		if err != nil {
			return nil, NewTemplateError(fmt.Sprintf("rendering data for service %q", call.Service), err).
				WithEntity(a.entityID)
		}
		if call.IncludeEntityID {
			if _, ok := params[EntityIDPlaceholder]; !ok {
				params[EntityIDPlaceholder] = a.entityID
			}
		}
		out[i] = RenderedCall{Service: call.Service, Params: params}
	}
	return out, nil
}

// Execute runs the calls of the rule matching value, strictly in configured
// order. All parameters are rendered before the first call. A failing call
// stops execution and is returned as an ActionInvocationError; calls that
// already completed are not rolled back.
func (a *Actor) Execute(ctx context.Context, value Tuple) error {
	execID := uuid.NewString()
	logger := a.logger.With().Str("execution_id", execID).Logger()

	ctx, span := a.tracer.Start(ctx, "actor.execute", trace.WithAttributes(
		telemetry.AttrEntityID.String(a.entityID),
		telemetry.AttrExecutionID.String(execID),
		telemetry.AttrValue.String(value.String()),
	))
	defer span.End()

	rule, err := a.table.Lookup(value)
	if err != nil {
		err = err.(*EngineError).WithEntity(a.entityID).WithOperation("execute")
		telemetry.RecordError(span, err)
		return err
	}
	span.SetAttributes(telemetry.AttrRuleIndex.Int(rule.Index))

	calls, err := a.render(rule, value)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for i, call := range calls {
		logger.Debug().
			Str("service", call.Service).
			Interface("data", call.Params).
			Msg("Calling service")

		callCtx, callSpan := a.tracer.Start(ctx, "actor.call", trace.WithAttributes(
			telemetry.AttrService.String(call.Service),
			attribute.Int("call.index", i),
		))
		start := time.Now()
		err := a.invoker.Invoke(callCtx, call.Service, call.Params)
		a.recorder.RecordCall(call.Service, time.Since(start), err)
		if err != nil {
			invErr := NewActionInvocationError(call.Service, i, i, err).
				WithEntity(a.entityID).
				WithOperation("execute")
			telemetry.RecordError(callSpan, invErr)
			callSpan.End()
			telemetry.RecordError(span, invErr)
			logger.Error().Err(err).
				Str("service", call.Service).
				Int("completed_calls", i).
				Int("total_calls", len(calls)).
				Msg("Service call failed")
			return invErr
		}
		telemetry.RecordSuccess(callSpan)
		callSpan.End()
	}

	telemetry.RecordSuccess(span)
	return nil
}

// SetValue validates raw, checks it against the rule table and executes it.
// It returns false with a nil error when no rule matches.
func (a *Actor) SetValue(ctx context.Context, raw interface{}) (Tuple, bool, error) {
	value, err := ValidateValue(raw)
	if err != nil {
		return nil, false, err
	}
	if _, ok := a.FilterSetValue(value); !ok {
		return value, false, nil
	}
	if err := a.Execute(ctx, value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// MatchForObserve maps raw observed slot values to the longest prefix that
// matches a rule, trying lengths len(raw) down to 0. An element that cannot
// be represented as a Value (a list or mapping) matches only a wildcard and
// reads as null in the result. It returns false when no prefix matches.
func (a *Actor) MatchForObserve(raw []interface{}) (Tuple, bool) {
	observed := make(Tuple, len(raw))
	opaque := make([]bool, len(raw))
	for i, item := range raw {
		v, err := ValueOf(item)
		if err != nil {
			a.logger.Debug().Err(err).
				Int("slot", i).
				Msg("Observed attribute only matches wildcards")
			opaque[i] = true
			v = Null()
		}
		observed[i] = v
	}

	for size := len(observed); size >= 0; size-- {
		if a.table.findMasked(observed[:size], opaque[:size]) != nil {
			value := make(Tuple, size)
			copy(value, observed[:size])
			a.recorder.RecordObserve(a.entityID, true, size)
			return value, true
		}
	}

	a.recorder.RecordObserve(a.entityID, false, 0)
	a.logger.Warn().
		Interface("state", raw).
		Msg("Received state which is not configured as a value")
	return nil, false
}

// NotifyStateChanged builds the observed tuple from attrs in slot order,
// with null for missing attributes, and resolves it with MatchForObserve.
func (a *Actor) NotifyStateChanged(attrs map[string]interface{}) (Tuple, bool) {
	raw := make([]interface{}, len(a.slots))
	for i, slot := range a.slots {
		state := attrs[slot.Attribute]
		a.logger.Debug().
			Str("attribute", slot.Attribute).
			Interface("state", state).
			Msg("Attribute observed")
		raw[i] = state
	}
	return a.MatchForObserve(raw)
}

// Refresh reads the entity's current attributes and resolves them.
func (a *Actor) Refresh(ctx context.Context, reader StateReader) (Tuple, bool, error) {
	attrs, err := reader.ReadAttributes(ctx, a.entityID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read attributes of %s: %w", a.entityID, err)
	}
	value, ok := a.NotifyStateChanged(attrs)
	return value, ok, nil
}
