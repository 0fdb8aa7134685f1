package engine

import (
	"context"
	"time"
)

// Invoker performs the side-effecting service call for one action.
// Implementations own latency, timeouts and failure behaviour; the actuator
// treats each call as a single independent request.
type Invoker interface {
	// Invoke calls service with the fully rendered parameter mapping.
	Invoke(ctx context.Context, service string, params map[string]interface{}) error
}

// InvokerFunc adapts an ordinary function to the Invoker interface.
type InvokerFunc func(ctx context.Context, service string, params map[string]interface{}) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, service string, params map[string]interface{}) error {
	return f(ctx, service, params)
}

// StateReader reads the live attributes of a controlled entity.
type StateReader interface {
	// ReadAttributes returns the current attribute values of entityID.
	// Absent attributes are simply missing from the map.
	ReadAttributes(ctx context.Context, entityID string) (map[string]interface{}, error)
}

// Recorder receives measurements from an Actor.
// telemetry.Metrics implements this interface.
type Recorder interface {
	// RecordLookup records a write-path rule lookup.
	RecordLookup(entityID string, matched bool)

	// RecordObserve records a read-path resolution and the matched prefix length.
	RecordObserve(entityID string, recognized bool, length int)

	// RecordCall records one service invocation.
	RecordCall(service string, duration time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordLookup(string, bool)               {}
func (noopRecorder) RecordObserve(string, bool, int)         {}
func (noopRecorder) RecordCall(string, time.Duration, error) {}
