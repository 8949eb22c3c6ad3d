package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodhare/goodhare/internal/server"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/goodhare/goodhare/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the web interface until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	auth, err := services.NewSpotifyAuth(config.Credentials.Spotify.Map())
	if err != nil {
		return err
	}

	exports, db, err := r.openExports(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(config.Export.Dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create export directory: %w", shared.ErrExportWrite, err)
	}

	app, err := web.New(web.Options{
		Auth:          auth,
		Catalog:       r.newCatalog(config),
		Exports:       exports,
		SessionSecret: config.Server.SessionSecret,
		ExportDir:     config.Export.Dir,
		SecureCookies: cmd.Bool("secure-cookies"),
		Logger:        shared.WithLogger(r.logger, "component", "web"),
	})
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = config.Server.Addr()
	}

	srv := server.New(app.Handler(), server.Options{
		Addr:         addr,
		ReadTimeout:  config.Server.ReadTimeout.Duration,
		WriteTimeout: config.Server.WriteTimeout.Duration,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.writePlain("→ Serving goodhare on http://%s\n", addr)
	return server.Run(ctx, srv, nil, r.logger)
}
