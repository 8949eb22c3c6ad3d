// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through an export:
//  1. [PlaylistListView] : Browse playlists (Liked Songs first) and mark the ones to export
//  2. [TrackListView] : Preview the tracks of the highlighted playlist
//  3. [ConfirmView] : Confirm the selection
//  4. [ExportView] : Monitor progress while tracks are fetched and the CSV is written
//  5. [ResultView] : Display the written file and any skipped playlists
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.Exporter], so the view never blocks on the network.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
