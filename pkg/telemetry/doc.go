// Package telemetry provides observability for the actuator.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus):
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// Metrics implements engine.Recorder, so it can be handed to every actor
// with engine.WithRecorder. The tracer installs itself as the global
// OpenTelemetry provider; actors pick it up through otel.Tracer.
//
// Span and log field names are shared through the Attr* keys so that traces
// and logs of one execution can be correlated by execution.id.
package telemetry
