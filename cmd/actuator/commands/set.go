package commands

import (
	"fmt"

	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSetCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "set <entity_id> [value...]",
		Short: "Put an entity into a logical state",
		Long: `Set the value of an actor and execute the service calls of the
longest matching rule, in order.

Each value argument fills one slot. Numbers are parsed as numbers, "null"
is the null value and everything else is a string. With --dry-run the
calls are written to stdout as newline-delimited JSON instead of being
sent to Home Assistant.`,
		Example: `  # Turn a switch on
  actuator set switch.lamp on

  # Heat to 21.5 degrees
  actuator set climate.living heat 21.5

  # Show the calls without executing them
  actuator set --dry-run climate.living heat 21.5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entityID := args[0]

			raw, err := parseValue(args[1:])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(ctx, configPath, log.Logger)
			if err != nil {
				return err
			}

			opts := runtimeOptions{}
			if dryRun {
				opts.dryRun = cmd.OutOrStdout()
			}
			rt, err := newRuntime(ctx, cfg, opts)
			if err != nil {
				return err
			}
			defer rt.shutdown(ctx)

			actors, err := rt.buildActors(cfg)
			if err != nil {
				return err
			}
			actor, err := lookupActor(actors, entityID)
			if err != nil {
				return err
			}

			op := telemetry.StartOperation(rt.telemetry.WithContext(ctx), "cli.set",
				telemetry.AttrEntityID.String(entityID))
			value, executed, err := actor.SetValue(op.Ctx, raw)
			op.End(err)

			p := newPrinter(cmd.ErrOrStderr(), jsonOutput)
			if err == nil && !executed {
				err = engine.NewNoMatchingRuleError(value).WithEntity(entityID)
			}
			if err != nil {
				p.failure("%s", describeError(err))
				return err
			}
			if !dryRun {
				p.success("%s set to %s", entityID, value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the calls to stdout instead of executing them")

	return cmd
}

// describeError adds a hint for the common error codes.
func describeError(err error) string {
	switch {
	case engine.IsInvalidValueType(err):
		return fmt.Sprintf("%v (values must be numbers, strings or null)", err)
	case engine.IsNoMatchingRule(err):
		return fmt.Sprintf("%v (run 'actuator validate --rules' to list the rules)", err)
	}
	return err.Error()
}
