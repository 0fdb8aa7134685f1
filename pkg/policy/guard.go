package policy

import (
	"context"
	"fmt"

	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/rs/zerolog"
)

// Guard is an engine.Invoker that evaluates every call against the policy
// engine before passing it on.
type Guard struct {
	policies *Engine
	next     engine.Invoker
	entityID string
	mode     Mode
	logger   zerolog.Logger
}

// NewGuard wraps next for the actor controlling entityID.
func NewGuard(policies *Engine, next engine.Invoker, entityID string, mode Mode, logger zerolog.Logger) *Guard {
	if mode == "" {
		mode = ModeEnforcing
	}
	return &Guard{
		policies: policies,
		next:     next,
		entityID: entityID,
		mode:     mode,
		logger: logger.With().
			Str("component", "policy-guard").
			Str("entity_id", entityID).
			Logger(),
	}
}

// Invoke evaluates the call and, unless it is denied in enforcing mode,
// forwards it. A denial is returned as a POLICY_DENIED engine error.
func (g *Guard) Invoke(ctx context.Context, service string, params map[string]interface{}) error {
	result, err := g.policies.EvaluateCall(ctx, &CallInput{
		EntityID: g.entityID,
		Service:  service,
		Data:     params,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation for %s failed: %w", service, err)
	}

	for _, w := range result.Warnings {
		g.logger.Warn().
			Str("policy", w.Policy).
			Str("service", service).
			Msg(w.Message)
	}

	if !result.Allowed {
		reasons := result.Reasons()
		if g.mode == ModeAdvisory {
			g.logger.Warn().
				Str("service", service).
				Strs("violations", reasons).
				Msg("Call violates policy, allowing in advisory mode")
		} else {
			g.logger.Error().
				Str("service", service).
				Strs("violations", reasons).
				Msg("Call denied by policy")
			return engine.NewPolicyDeniedError(service, reasons).WithEntity(g.entityID)
		}
	}

	return g.next.Invoke(ctx, service, params)
}

// Factory returns a function suitable as a per-actor invoker factory that
// guards invokers produced by next.
func Factory(policies *Engine, mode Mode, logger zerolog.Logger, next func(entityID string) (engine.Invoker, error)) func(string) (engine.Invoker, error) {
	return func(entityID string) (engine.Invoker, error) {
		inner, err := next(entityID)
		if err != nil {
			return nil, err
		}
		return NewGuard(policies, inner, entityID, mode, logger), nil
	}
}
