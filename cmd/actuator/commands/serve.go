package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/policy"
	"github.com/openfroyo/actuator/pkg/refresh"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var (
		listenAddr     string
		watch          bool
		refreshOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the actors over HTTP",
		Long: `Serve the configured actors over an HTTP API.

Endpoints:
  GET  /v1/actors                   list actors and their rules
  GET  /v1/actors/{entity}          describe one actor
  POST /v1/actors/{entity}/value    {"value": [...]} executes the matching rule
  POST /v1/actors/{entity}/state    {"attributes": {...}} resolves a state
  POST /v1/actors/{entity}/refresh  resolves the live Home Assistant state
  GET  /metrics                     Prometheus metrics
  GET  /healthz                     health check

With --watch the configuration is reloaded when its files change. A
configuration that fails to load or build leaves the running actors
untouched. Changes to the homeassistant and policy sections need a
restart.`,
		Example: `  # Serve on the default address
  actuator serve -c actuators/

  # Serve without hot reload on another port
  actuator serve --listen :9000 --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), listenAddr, watch, refreshOnStart)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload configuration when files change")
	cmd.Flags().BoolVar(&refreshOnStart, "refresh-on-start", false, "read every entity's state once at startup")

	return cmd
}

func serve(ctx context.Context, listenAddr string, watch, refreshOnStart bool) error {
	cfg, err := loadConfig(ctx, configPath, log.Logger)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, runtimeOptions{metrics: true})
	if err != nil {
		return err
	}
	defer rt.shutdown(context.Background())
	logger := rt.logger

	actors, err := rt.buildActors(cfg)
	if err != nil {
		return err
	}

	if rt.telemetry.Config.Metrics.ListenAddress != "" {
		metricsServer, err := rt.telemetry.Metrics.StartMetricsServer(logger)
		if err != nil {
			return err
		}
		if metricsServer != nil {
			defer metricsServer.Close()
		}
	}

	var reader engine.StateReader
	if rt.client != nil {
		reader = rt.client
	}
	srv := newServer(actors, reader, rt.telemetry, logger)
	srv.swap(actors)

	if watch {
		watcher := config.NewWatcher(config.NewLoader(logger), configPath, logger)
		if err := watcher.Watch(ctx, func(newCfg *config.Config, loadErr error) {
			reloadActors(ctx, rt, srv, newCfg, loadErr)
		}); err != nil {
			return err
		}
		defer watcher.Close()
	}

	if rt.policies != nil && cfg.Policy.Watch && len(cfg.Policy.Paths) > 0 {
		policyLoader := policy.NewLoader(logger)
		if err := policyLoader.Watch(ctx, cfg.Policy.Paths, func(policies []policy.Policy) error {
			return rt.policies.Replace(ctx, policies)
		}); err != nil {
			return err
		}
		defer policyLoader.StopWatching()
	}

	if reader != nil {
		scheduler := refresh.NewScheduler(cfg.HomeAssistant.RefreshSchedule, reader,
			func() []*engine.Actor { return srv.actors.Load().List() }, nil, logger)
		if refreshOnStart {
			scheduler.RunOnce(ctx)
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", listenAddr).
			Int("actors", actors.Len()).
			Msg("Serving actuator API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("Shutting down actuator API")
	return httpServer.Shutdown(shutdownCtx)
}

// reloadActors rebuilds the actors from a reloaded configuration and swaps
// them in. Failures keep the running actors.
func reloadActors(ctx context.Context, rt *runtime, srv *server, cfg *config.Config, loadErr error) {
	_, span := rt.telemetry.Tracer.StartReloadSpan(ctx, configPath)
	defer span.End()

	err := loadErr
	var actors *config.Actors
	if err == nil {
		if cfg.HomeAssistant != rt.cfg.HomeAssistant {
			rt.logger.Warn().Msg("homeassistant settings changed, restart to apply them")
		}
		actors, err = rt.buildActors(cfg)
	}

	rt.telemetry.Metrics.RecordConfigReload(err)
	if err != nil {
		telemetry.RecordError(span, err)
		rt.logger.Error().Err(err).Msg("Keeping previous actors")
		return
	}

	srv.swap(actors)
	telemetry.RecordSuccess(span)
	rt.logger.Info().Int("actors", actors.Len()).Msg("Actors reloaded")
}
