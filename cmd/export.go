package main

import (
	"context"
	"fmt"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/goodhare/goodhare/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Export logs in through the browser and exports either the --playlist selection or the playlists picked in the TUI.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if !config.HasSpotifyCredentials() {
		return fmt.Errorf("%w: set credentials.spotify in %s or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET",
			shared.ErrMissingCredentials, cmd.String("config"))
	}

	auth, err := services.NewSpotifyAuth(config.Credentials.Spotify.Map())
	if err != nil {
		return err
	}

	token, err := r.login(ctx, config, auth, cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	source := auth.TokenSource(ctx, token, func(*oauth2.Token) {
		r.logger.Debug("access token refreshed")
	})

	return r.runExport(ctx, config, source, cmd.StringSlice("playlist"), cmd.String("output"))
}

// runExport exports ids (or an interactive selection when ids is empty) and prints the result.
func (r *Runner) runExport(ctx context.Context, config *shared.Config, source oauth2.TokenSource, ids []string, output string) error {
	catalog := r.newCatalog(config)

	token, err := source.Token()
	if err != nil {
		return &services.AuthError{Op: "token", Err: err}
	}

	user, err := catalog.CurrentUser(ctx, token)
	if err != nil {
		return err
	}
	r.logger.Info("logged in", "user", user.ID)

	exports, db, err := r.openExports(config)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := tasks.ExportOpts{
		Dir:        config.Export.Dir,
		Path:       output,
		OwnerID:    user.ID,
		NameByDate: true,
	}

	selection := models.NewSelection(ids)
	var results []*tasks.ExportResult
	if len(selection) == 0 {
		results, err = r.pick(ctx, catalog, exports, token, opts)
	} else {
		var result *tasks.ExportResult
		if result, err = r.exportSelection(ctx, catalog, exports, source, selection, opts); err == nil {
			results = append(results, result)
		}
	}

	for _, result := range results {
		r.writeResult(result)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return r.writePlain("No export written.\n")
	}
	return nil
}

// exportSelection runs one export behind a spinner.
func (r *Runner) exportSelection(
	ctx context.Context,
	catalog services.Catalog,
	recorder tasks.ExportRecorder,
	source oauth2.TokenSource,
	selection models.Selection,
	opts tasks.ExportOpts,
) (*tasks.ExportResult, error) {
	exporter := tasks.NewExporter(catalog, recorder, shared.WithLogger(r.logger, "component", "exporter"))

	var result *tasks.ExportResult
	action := func(ctx context.Context) error {
		token, err := source.Token()
		if err != nil {
			return &services.AuthError{Op: "token", Err: err}
		}

		playlists, err := catalog.ListPlaylists(ctx, token)
		if err != nil {
			return err
		}

		result, err = exporter.Export(ctx, token, selection, tasks.PlaylistNames(playlists), opts, nil)
		return err
	}

	title := fmt.Sprintf("Exporting %d playlists...", len(selection))
	if err := r.spin(ctx, title, action); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) writeResult(result *tasks.ExportResult) error {
	record := result.Record

	r.writePlain("✓ Exported %d tracks from %d playlists\n", record.RowCount, record.PlaylistCount)
	r.writePlain("  File: %s\n", record.Path)
	r.writePlain("  ID:   %s\n", record.ID)

	if len(result.Skipped) > 0 {
		r.writePlainln("⚠ Skipped %d playlists:", len(result.Skipped))
		for _, s := range result.Skipped {
			r.writePlain("  • %s (%s)\n", s.Name, s.Reason)
		}
	}
	return nil
}
