// Package repositories implements SQLite persistence for export records.
//
// [ExportRepository] stores one row per CSV file written by the web shell or the CLI. Rows carry the owning
// Spotify user id so downloads can be authorized ([ExportRepository.GetForOwner]) and `goodhare history` can
// list past exports. The schema lives in internal/shared/sql and is applied by [shared.RunMigrations].
package repositories
