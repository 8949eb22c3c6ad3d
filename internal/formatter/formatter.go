// package formatter serializes export entries to CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/shared"
)

// ArtistSeparator joins multiple artist names in one cell.
const ArtistSeparator = "; "

// Header is the first CSV row.
var Header = []string{"Name", "Artist", "Album", "Year", "Duration (ms)", "Playlist"}

// Row maps one entry to its CSV record.
func Row(e models.Entry) []string {
	return []string{
		e.Track.Name,
		strings.Join(e.Track.Artists, ArtistSeparator),
		e.Track.Album,
		e.Track.Year,
		strconv.Itoa(e.Track.DurationMS),
		e.Playlist,
	}
}

// WriteCSV writes the header and one row per entry to w.
func WriteCSV(w io.Writer, entries []models.Entry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		if err := writer.Write(Row(e)); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// ExportToCSV converts entries to CSV text with columns Name, Artist, Album, Year, Duration (ms), Playlist.
// Zero entries produce the header row only.
func ExportToCSV(entries []models.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSVFile writes entries as CSV to path, creating parent directories.
func WriteCSVFile(entries []models.Entry, path string) error {
	data, err := ExportToCSV(entries)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrExportWrite, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create directory: %w", shared.ErrExportWrite, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write CSV file: %w", shared.ErrExportWrite, err)
	}
	return nil
}

// ExportFilename returns the download name for an export created at t, e.g. spotify_export_20240131_154500.csv.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("spotify_export_%s.csv", t.Format("20060102_150405"))
}
