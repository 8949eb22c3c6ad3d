// Package tasks turns a playlist selection into a CSV export with real-time progress reporting.
//
// # Core Operations
//
//  1. [Exporter.Collect] : walk the selection in order
//     - Duplicate ids collapse to their first occurrence
//     - Each playlist's tracks are fetched through [services.Catalog]
//     - Each track becomes one [models.Entry] tagged with its playlist name
//     - Forbidden or missing playlists are skipped and reported; any other failure aborts
//
//  2. [Exporter.Export] : Collect, write the CSV file and persist an [models.ExportRecord]
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Persistence
//
// The optional [ExportRecorder] interface stores the export so its owner can download it later
// (repositories.ExportRepository).
package tasks
