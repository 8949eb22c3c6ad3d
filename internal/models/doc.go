// Package models defines the domain entities of the goodhare export service.
//
// Transient values produced by the Spotify catalog:
//   - [Playlist] : playlist metadata, including the synthetic "Liked Songs" entry ([LikedSongsID])
//   - [Track] : one track's export-relevant metadata
//   - [Entry] : a (Track, playlist name) pair, the unit serialized to one CSV row
//   - [Selection] : ordered playlist identifiers chosen for one export
//   - [User] : the Spotify account owning a session
//
// Persisted values:
//   - [ExportRecord] : a written CSV file with its owner, used to authorize downloads and list history
package models
