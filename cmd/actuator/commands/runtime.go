package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/invoker"
	"github.com/openfroyo/actuator/pkg/policy"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog"
)

// defaultTokenEnv holds the Home Assistant token when token_env is unset.
const defaultTokenEnv = "HASS_TOKEN"

// errNoBackend is returned by invocations when no Home Assistant URL is
// configured.
var errNoBackend = errors.New("homeassistant.url is not configured")

// runtime holds everything built from one loaded configuration.
type runtime struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	client    *invoker.Client
	policies  *policy.Engine
	mode      policy.Mode

	// dryRun, when set, receives the calls instead of Home Assistant.
	dryRun *invoker.Encoder
}

type runtimeOptions struct {
	dryRun  io.Writer
	metrics bool
}

// loadConfig loads the configuration at configPath.
func loadConfig(ctx context.Context, path string, logger zerolog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newRuntime builds telemetry, the Home Assistant client and the policy
// engine for cfg.
func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	telCfg := cfg.Telemetry
	if telCfg == nil {
		telCfg = telemetry.DefaultConfig()
	}
	if logLevel != "" {
		telCfg.Logging.Level = logLevel
	}
	if !opts.metrics {
		telCfg.Metrics.Enabled = false
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &runtime{
		cfg:       cfg,
		telemetry: tel,
		logger:    tel.Logger.Zerolog(),
		mode:      policy.ModeEnforcing,
	}

	if opts.dryRun != nil {
		rt.dryRun = invoker.NewEncoder(opts.dryRun)
	}

	if ha := cfg.HomeAssistant; ha.URL != "" {
		timeout, err := ha.RequestTimeout()
		if err != nil {
			return nil, err
		}
		tokenEnv := ha.TokenEnv
		if tokenEnv == "" {
			tokenEnv = defaultTokenEnv
		}
		rt.client, err = invoker.NewClient(ha.URL, os.Getenv(tokenEnv),
			invoker.WithTimeout(timeout),
			invoker.WithTracer(tel.Tracer),
			invoker.WithLogger(rt.logger),
		)
		if err != nil {
			return nil, err
		}
	}

	if pc := cfg.Policy; pc != nil && pc.Enabled {
		rt.mode, err = policy.ParseMode(pc.Mode)
		if err != nil {
			return nil, err
		}
		rt.policies, err = policy.NewEngine(rt.logger)
		if err != nil {
			return nil, err
		}
		if len(pc.Paths) > 0 {
			if err := rt.policies.LoadPolicies(ctx, pc.Paths); err != nil {
				return nil, err
			}
		}
	}

	return rt, nil
}

// invokerFactory returns the per-actor invoker: the dry-run stream or the
// Home Assistant client, guarded by the policy engine when enabled.
func (r *runtime) invokerFactory() config.InvokerFactory {
	base := func(entityID string) (engine.Invoker, error) {
		if r.dryRun != nil {
			return invoker.NewStreamWithEncoder(r.dryRun, entityID, r.logger), nil
		}
		if r.client == nil {
			return engine.InvokerFunc(func(context.Context, string, map[string]interface{}) error {
				return errNoBackend
			}), nil
		}
		return r.client, nil
	}
	if r.policies == nil {
		return base
	}
	return policy.Factory(r.policies, r.mode, r.logger, base)
}

// buildActors constructs the actors of cfg with the runtime's invokers and
// instrumentation.
func (r *runtime) buildActors(cfg *config.Config) (*config.Actors, error) {
	return config.Build(cfg, r.invokerFactory(),
		engine.WithLogger(r.logger),
		engine.WithRecorder(r.telemetry.Metrics),
		engine.WithTracer(r.telemetry.Tracer.Tracer()),
	)
}

// stateReader returns the Home Assistant client, or an error when none is
// configured.
func (r *runtime) stateReader() (engine.StateReader, error) {
	if r.client == nil {
		return nil, errNoBackend
	}
	return r.client, nil
}

// shutdown flushes traces.
func (r *runtime) shutdown(ctx context.Context) {
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// lookupActor returns the actor for entityID or a helpful error.
func lookupActor(actors *config.Actors, entityID string) (*engine.Actor, error) {
	actor, ok := actors.Get(entityID)
	if !ok {
		return nil, fmt.Errorf("no actor configured for %s (known: %v)", entityID, actors.EntityIDs())
	}
	return actor, nil
}
