package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "actuator",
		Short: "Rule-based actuator for Home Assistant entities",
		Long: `actuator maps logical values of an entity to Home Assistant service calls
and maps observed entity attributes back to logical values.

Each actor has an ordered list of slots (entity attributes) and a table of
rules. A rule pairs a pattern over the slots with the service calls that
put the entity into that state. Patterns may use "*" as a wildcard and the
calls may refer to the value with {slot0}, {slot1}, ... and {entity_id}.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				return nil
			}
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "actuator.yaml", "config file or directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSetCommand())
	rootCmd.AddCommand(newObserveCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
