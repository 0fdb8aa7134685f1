package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfroyo/actuator/cmd/actuator/commands"
	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes returned to the shell.
const (
	exitOK = iota
	exitFailure
	exitConfig
	exitNoMatch
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    os.Getenv("NO_COLOR") != "",
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(logLevelFromEnv(os.Getenv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, version, commit, date)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("actuator failed")
	}
	os.Exit(exitCode(err))
}

// logLevelFromEnv reads ACTUATOR_LOG_LEVEL, then LOG_LEVEL. Unknown or
// empty levels mean info; --log-level overrides either.
func logLevelFromEnv(getenv func(string) string) zerolog.Level {
	for _, key := range []string{"ACTUATOR_LOG_LEVEL", "LOG_LEVEL"} {
		raw := getenv(key)
		if raw == "" {
			continue
		}
		if level, err := zerolog.ParseLevel(raw); err == nil && level != zerolog.NoLevel {
			return level
		}
	}
	return zerolog.InfoLevel
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case engine.ErrorCode(err) == engine.ErrCodeConfig:
		return exitConfig
	case engine.IsNoMatchingRule(err):
		return exitNoMatch
	default:
		return exitFailure
	}
}
