package main

import (
	"context"
	"errors"
	"os"

	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/urfave/cli/v3"
)

// Exit codes returned by the binary.
const (
	exitError      = 1
	exitAuth       = 2
	exitRateLimit  = 3
	exitNoExport   = 4
	exitBadCommand = 64
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "goodhare",
		Usage:    "Export Spotify playlists and Liked Songs to CSV",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.logger.Error("goodhare failed", "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error class to the process exit status.
func exitCode(err error) int {
	switch {
	case services.IsAuthError(err):
		return exitAuth
	case errors.Is(err, shared.ErrRateLimited):
		return exitRateLimit
	case errors.Is(err, shared.ErrNothingExported):
		return exitNoExport
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrInvalidConfig):
		return exitBadCommand
	default:
		return exitError
	}
}
