// package models defines the data model for the playlist export service
package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// LikedSongsID is the fixed identifier of the synthetic playlist backed by the user's saved tracks.
	LikedSongsID = "liked_songs"
	// LikedSongsName is the display name of the synthetic saved-tracks playlist.
	LikedSongsName = "Liked Songs"
)

// Playlist represents a Spotify playlist, or the synthetic Liked Songs collection.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Owner       string `json:"owner,omitempty"` // empty for Liked Songs
}

// LikedSongs returns the synthetic Liked Songs playlist with the given track count.
func LikedSongs(trackCount int) Playlist {
	return Playlist{
		ID:          LikedSongsID,
		Name:        LikedSongsName,
		Description: "Your saved tracks",
		TrackCount:  trackCount,
	}
}

// IsLikedSongs reports whether p is the synthetic saved-tracks playlist.
func (p Playlist) IsLikedSongs() bool {
	return p.ID == LikedSongsID
}

// User is the authenticated Spotify account that owns a session and its exports.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Name returns the display name, falling back to the account id.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// Track represents the export-relevant metadata of a single track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	Year       string   `json:"year,omitempty"` // empty when the release date is unknown
	DurationMS int      `json:"duration_ms"`
}

// ReleaseYear returns the first four characters of a release date ("2019-04-12", "2019-04", "2019").
// Dates shorter than four characters yield "".
func ReleaseYear(releaseDate string) string {
	if len(releaseDate) < 4 {
		return ""
	}
	return releaseDate[:4]
}

// Entry pairs a track with the name of the playlist it was pulled from.
type Entry struct {
	Track    Track
	Playlist string
}

// EntriesFor pairs every track with playlist, preserving order.
func EntriesFor(playlist string, tracks []Track) []Entry {
	entries := make([]Entry, len(tracks))
	for i, t := range tracks {
		entries[i] = Entry{Track: t, Playlist: playlist}
	}
	return entries
}

// Selection is the ordered set of playlist identifiers chosen for one export.
type Selection []string

// NewSelection trims ids, drops blanks and collapses duplicates to their first occurrence.
func NewSelection(ids []string) Selection {
	seen := make(map[string]bool, len(ids))
	sel := make(Selection, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sel = append(sel, id)
	}
	return sel
}

// SkippedPlaylist records a selected playlist that could not be exported.
type SkippedPlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ExportRecord describes one CSV file written for a user.
type ExportRecord struct {
	ID            string
	OwnerID       string
	Filename      string // download name offered to the browser
	Path          string // location on disk
	RowCount      int
	PlaylistCount int
	Skipped       []SkippedPlaylist
	CreatedAt     time.Time
}

// Validate checks the fields required for persistence.
func (r *ExportRecord) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("export id is required")
	case r.OwnerID == "":
		return fmt.Errorf("export owner is required")
	case r.Filename == "" || r.Path == "":
		return fmt.Errorf("export filename and path are required")
	case r.RowCount < 0 || r.PlaylistCount < 0:
		return fmt.Errorf("export counts must not be negative")
	}
	return nil
}
