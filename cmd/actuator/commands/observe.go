package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openfroyo/actuator/pkg/config"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/invoker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// observation is the result of resolving observed attributes.
type observation struct {
	EntityID   string       `json:"entity_id"`
	Value      engine.Tuple `json:"value"`
	Recognized bool         `json:"recognized"`
}

func newObserveCommand() *cobra.Command {
	var (
		refresh bool
		stdin   bool
	)

	cmd := &cobra.Command{
		Use:   "observe <entity_id> [attribute=value...]",
		Short: "Resolve observed attributes to a logical value",
		Long: `Resolve the attributes of an entity to the longest value prefix that
matches one of its rules.

Attributes come from the command line, from the live Home Assistant state
(--refresh) or from STATE messages read from stdin (--stdin), one JSON
message per line.`,
		Example: `  # Resolve given attributes
  actuator observe climate.living hvac_mode=heat temperature=21.5

  # Resolve the current state in Home Assistant
  actuator observe --refresh climate.living

  # Resolve a stream of state messages
  some-producer | actuator observe --stdin`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !stdin && len(args) == 0 {
				return fmt.Errorf("entity_id is required")
			}

			cfg, err := loadConfig(ctx, configPath, log.Logger)
			if err != nil {
				return err
			}
			rt, err := newRuntime(ctx, cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.shutdown(ctx)

			actors, err := rt.buildActors(cfg)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), jsonOutput)

			if stdin {
				return observeStream(cmd.InOrStdin(), actors, p)
			}

			actor, err := lookupActor(actors, args[0])
			if err != nil {
				return err
			}

			var obs observation
			if refresh {
				reader, err := rt.stateReader()
				if err != nil {
					return err
				}
				obs, err = refreshActor(ctx, actor, reader)
				if err != nil {
					return err
				}
			} else {
				attrs, err := parseAttributes(args[1:])
				if err != nil {
					return err
				}
				obs = observe(actor, attrs)
			}

			printObservation(p, obs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "read the current state from Home Assistant")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read STATE messages from stdin")
	cmd.MarkFlagsMutuallyExclusive("refresh", "stdin")

	return cmd
}

func observe(actor *engine.Actor, attrs map[string]interface{}) observation {
	value, ok := actor.NotifyStateChanged(attrs)
	return observation{EntityID: actor.EntityID(), Value: value, Recognized: ok}
}

func refreshActor(ctx context.Context, actor *engine.Actor, reader engine.StateReader) (observation, error) {
	value, ok, err := actor.Refresh(ctx, reader)
	if err != nil {
		return observation{}, err
	}
	return observation{EntityID: actor.EntityID(), Value: value, Recognized: ok}, nil
}

// observeStream resolves every STATE message of r until EOF. Messages for
// unknown entities are reported and skipped.
func observeStream(r io.Reader, actors *config.Actors, p *printer) error {
	dec := invoker.NewDecoder(r)
	for {
		state, err := dec.DecodeState()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		actor, ok := actors.Get(state.EntityID)
		if !ok {
			if !p.json {
				p.warning("%s: no actor configured", state.EntityID)
			}
			continue
		}
		printObservation(p, observe(actor, state.Attributes))
	}
}

func printObservation(p *printer, obs observation) {
	if p.json {
		_ = p.emit(obs)
		return
	}
	if obs.Recognized {
		p.success("%s is %s", obs.EntityID, obs.Value)
	} else {
		p.warning("%s is in an unrecognized state", obs.EntityID)
	}
}
