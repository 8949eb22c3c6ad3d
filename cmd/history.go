package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists recorded exports, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	exports, db, err := r.openExports(config)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := cmd.Int("limit")
	var records []*models.ExportRecord
	if owner := cmd.String("owner"); owner != "" {
		records, err = exports.ListByOwner(ctx, owner, limit)
	} else {
		records, err = exports.List(ctx, limit)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if len(records) == 0 {
		return r.writePlain("No exports recorded.\n")
	}

	r.writePlain("Found %d exports:\n\n", len(records))
	for i, rec := range records {
		r.writePlain("%d. %s\n", i+1, rec.Filename)
		r.writePlain("   ID: %s\n", rec.ID)
		r.writePlain("   Owner: %s\n", rec.OwnerID)
		r.writePlain("   Created: %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		r.writePlain("   Rows: %d from %d playlists\n", rec.RowCount, rec.PlaylistCount)
		r.writePlain("   Path: %s\n", rec.Path)
		for _, s := range rec.Skipped {
			r.writePlain("   Skipped: %s (%s)\n", s.Name, s.Reason)
		}
		r.writePlain("\n")
	}
	return nil
}

// HistoryDelete removes a recorded export and its file.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: export id", shared.ErrMissingArgument)
	}
	if !shared.IsID(id) {
		return fmt.Errorf("%w: export id %q", shared.ErrInvalidArgument, id)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	exports, db, err := r.openExports(config)
	if err != nil {
		return err
	}
	defer db.Close()

	record, err := exports.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove %s: %w", shared.ErrExportWrite, record.Path, err)
	}
	if err := exports.Delete(ctx, id); err != nil {
		return err
	}

	return r.writePlain("✓ Deleted export %s (%s)\n", id, record.Filename)
}
