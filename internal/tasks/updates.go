package tasks

import (
	"fmt"

	"github.com/goodhare/goodhare/internal/models"
)

// ProgressUpdate represents a progress event during an export.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchTracks Phase = iota
	SkipPlaylist
	WriteExport
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchTracks:
		return "fetch_tracks"
	case SkipPlaylist:
		return "skip_playlist"
	case WriteExport:
		return "write_export"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchTracksUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s...", step, total, name),
	}
}

func fetchedTracksUpdate(step, total int, name string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, name, count),
		Data:    count,
	}
}

func skipPlaylistUpdate(step, total int, skipped models.SkippedPlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SkipPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, skipped.Name, skipped.Reason),
		Data:    skipped,
	}
}

func writeExportUpdate(rows int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %d rows to %s...", rows, path),
	}
}

func doneUpdate(result *ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Exported %d rows from %d playlists", result.Record.RowCount, result.Record.PlaylistCount),
		Data:    result,
	}
}
