// package tasks implements the playlist export workflow.
//
// The core abstraction is Exporter, which walks a selection of playlists, gathers their tracks and writes a
// CSV file. Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goodhare/goodhare/internal/formatter"
	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"golang.org/x/oauth2"
)

// CollectResult contains the entries gathered for a selection.
type CollectResult struct {
	Entries   []models.Entry           // One per (track, playlist) pair, in selection order
	Exported  int                      // Playlists whose tracks were read
	Skipped   []models.SkippedPlaylist // Playlists that were forbidden or missing
	Selection models.Selection         // Deduplicated selection that was walked
}

// ExportResult contains the outcome of a full export.
type ExportResult struct {
	Record  *models.ExportRecord
	Skipped []models.SkippedPlaylist
}

// ExportOpts configures where an export is written and who owns it.
type ExportOpts struct {
	Dir     string    // Directory for generated files, named <id>.csv
	Path    string    // Explicit output path, overrides Dir
	OwnerID string    // Spotify user id recorded as the owner
	Now     time.Time // Creation time (default: time.Now)

	// NameByDate names files in Dir after their timestamp (spotify_export_<ts>.csv) instead of the record id.
	NameByDate bool
}

// ExportRecorder persists export records. Implemented by repositories.ExportRepository.
type ExportRecorder interface {
	Create(ctx context.Context, record *models.ExportRecord) error
}

// Exporter runs exports against a [services.Catalog].
type Exporter struct {
	catalog  services.Catalog
	recorder ExportRecorder
	logger   *log.Logger
}

// NewExporter creates an Exporter. recorder may be nil, in which case exports are not persisted.
func NewExporter(catalog services.Catalog, recorder ExportRecorder, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Exporter{catalog: catalog, recorder: recorder, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// PlaylistNames indexes playlist names by id.
func PlaylistNames(playlists []models.Playlist) map[string]string {
	names := make(map[string]string, len(playlists))
	for _, p := range playlists {
		names[p.ID] = p.Name
	}
	return names
}

// DisplayName returns the name for id, "Liked Songs" for the synthetic playlist, or "Playlist <id>".
func DisplayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	if id == models.LikedSongsID {
		return models.LikedSongsName
	}
	return "Playlist " + id
}

// skipReason reports whether err allows the export to continue without the playlist.
func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, shared.ErrPlaylistForbidden):
		return "access denied", true
	case errors.Is(err, shared.ErrPlaylistNotFound):
		return "not found", true
	}
	return "", false
}

// Collect reads every playlist in selection, in order, and pairs each track with its playlist name.
//
// Forbidden and missing playlists are skipped and reported; any other error aborts.
func (e *Exporter) Collect(
	ctx context.Context,
	token *oauth2.Token,
	selection models.Selection,
	names map[string]string,
	progress chan<- ProgressUpdate,
) (*CollectResult, error) {
	sel := models.NewSelection(selection)
	result := &CollectResult{
		Entries:   []models.Entry{},
		Selection: sel,
	}

	for i, id := range sel {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := DisplayName(names, id)
		sendProgress(progress, fetchTracksUpdate(i+1, len(sel), name))

		tracks, err := e.catalog.ListTracks(ctx, token, id)
		if err != nil {
			reason, ok := skipReason(err)
			if !ok {
				return nil, fmt.Errorf("failed to export %s: %w", name, err)
			}

			skipped := models.SkippedPlaylist{ID: id, Name: name, Reason: reason}
			result.Skipped = append(result.Skipped, skipped)
			e.logger.Warn("skipping playlist", "id", id, "name", name, "reason", reason)
			sendProgress(progress, skipPlaylistUpdate(i+1, len(sel), skipped))
			continue
		}

		result.Entries = append(result.Entries, models.EntriesFor(name, tracks)...)
		result.Exported++
		sendProgress(progress, fetchedTracksUpdate(i+1, len(sel), name, len(tracks)))
	}

	e.logger.Info("collected export", "playlists", result.Exported, "skipped", len(result.Skipped), "rows", len(result.Entries))
	return result, nil
}

// Export collects selection, writes the CSV file and records it.
//
// When every selected playlist was skipped no file is written and the error wraps [shared.ErrNothingExported].
func (e *Exporter) Export(
	ctx context.Context,
	token *oauth2.Token,
	selection models.Selection,
	names map[string]string,
	opts ExportOpts,
	progress chan<- ProgressUpdate,
) (*ExportResult, error) {
	if opts.Dir == "" && opts.Path == "" {
		return nil, fmt.Errorf("%w: export directory or path is required", shared.ErrInvalidInput)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	collected, err := e.Collect(ctx, token, selection, names, progress)
	if err != nil {
		return nil, err
	}

	if collected.Exported == 0 && len(collected.Skipped) > 0 {
		names := make([]string, len(collected.Skipped))
		for i, s := range collected.Skipped {
			names[i] = s.Name
		}
		return nil, fmt.Errorf("%w: skipped %s", shared.ErrNothingExported, strings.Join(names, ", "))
	}

	id := shared.GenerateID()
	filename := formatter.ExportFilename(opts.Now)
	path := opts.Path
	switch {
	case path != "":
	case opts.NameByDate:
		path = filepath.Join(opts.Dir, filename)
	default:
		path = filepath.Join(opts.Dir, id+".csv")
	}

	sendProgress(progress, writeExportUpdate(len(collected.Entries), path))
	if err := formatter.WriteCSVFile(collected.Entries, path); err != nil {
		return nil, err
	}

	record := &models.ExportRecord{
		ID:            id,
		OwnerID:       opts.OwnerID,
		Filename:      filename,
		Path:          path,
		RowCount:      len(collected.Entries),
		PlaylistCount: collected.Exported,
		Skipped:       collected.Skipped,
		CreatedAt:     opts.Now.UTC(),
	}

	if e.recorder != nil {
		if err := e.recorder.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("%w: failed to record export: %w", shared.ErrExportWrite, err)
		}
	}

	result := &ExportResult{Record: record, Skipped: collected.Skipped}
	e.logger.Info("export written", "id", id, "path", path, "rows", record.RowCount)
	sendProgress(progress, doneUpdate(result))
	return result, nil
}
