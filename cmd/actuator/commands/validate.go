package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// actorSummary describes one built actor.
type actorSummary struct {
	EntityID string   `json:"entity_id"`
	Slots    []string `json:"slots"`
	Rules    []string `json:"rules"`
}

func summarize(actor *engine.Actor) actorSummary {
	s := actorSummary{EntityID: actor.EntityID()}
	for _, slot := range actor.Slots() {
		s.Slots = append(s.Slots, slot.Attribute)
	}
	for _, rule := range actor.Table().Rules() {
		s.Rules = append(s.Rules, fmt.Sprintf("%s -> %d call(s)", rule.Pattern, len(rule.Calls)))
	}
	return s
}

func newValidateCommand() *cobra.Command {
	var showRules bool

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate actuator configuration",
		Long: `Validate actuator configuration files.

This command checks:
  - YAML, JSON, CUE and Starlark syntax
  - Schema conformance of every section
  - Rule patterns against the slot count of each actor
  - Placeholders used in service data
  - Policy files, when policy enforcement is enabled`,
		Example: `  # Validate the default configuration
  actuator validate

  # Validate a directory and list the resolved rules
  actuator validate --rules ./actuators`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			log.Info().Str("path", path).Msg("Validating configuration")

			summaries, err := validateConfig(cmd.Context(), path)
			p := newPrinter(cmd.OutOrStdout(), jsonOutput)
			if err != nil {
				if !p.json {
					p.failure("%s", err)
				}
				return err
			}

			if p.json {
				return p.emit(summaries)
			}
			for _, s := range summaries {
				p.success("%s (%d slot(s), %d rule(s))", s.EntityID, len(s.Slots), len(s.Rules))
				if showRules {
					for _, r := range s.Rules {
						p.printf("    %s\n", r)
					}
				}
			}
			if len(summaries) == 0 {
				p.warning("no actors configured")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showRules, "rules", false, "list the rules of every actor in lookup order")

	return cmd
}

// validateConfig loads path, compiles its policies and builds every actor
// without contacting Home Assistant.
func validateConfig(ctx context.Context, path string) ([]actorSummary, error) {
	cfg, err := loadConfig(ctx, path, log.Logger)
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return nil, err
	}
	defer rt.shutdown(ctx)

	actors, err := config.Build(cfg, config.StaticInvoker(engine.InvokerFunc(
		func(context.Context, string, map[string]interface{}) error { return nil },
	)), engine.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}

	summaries := make([]actorSummary, 0, actors.Len())
	for _, actor := range actors.List() {
		summaries = append(summaries, summarize(actor))
	}
	return summaries, nil
}
