// package repositories provides persistence for export records.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/shared"
)

// ExportRepository stores [models.ExportRecord] rows in the exports table.
type ExportRepository struct {
	db *sql.DB
}

// NewExportRepository creates a new [ExportRepository] with the given database connection
func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

const exportColumns = `id, owner_id, filename, path, row_count, playlist_count, skipped, created_at`

// Create inserts record. A missing ID is generated and CreatedAt defaults to now.
func (r *ExportRepository) Create(ctx context.Context, record *models.ExportRecord) error {
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()

	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	skipped, err := encodeSkipped(record.Skipped)
	if err != nil {
		return err
	}

	query := `INSERT INTO exports (` + exportColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.Filename, record.Path,
		record.RowCount, record.PlaylistCount, skipped, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert export: %w", err)
	}
	return nil
}

// Get retrieves an export by ID.
func (r *ExportRepository) Get(ctx context.Context, id string) (*models.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id = ?`

	record, err := scanExport(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrExportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query export: %w", err)
	}
	return record, nil
}

// GetForOwner retrieves an export by ID only when it belongs to ownerID.
// Exports of other users are reported as not found.
func (r *ExportRepository) GetForOwner(ctx context.Context, id, ownerID string) (*models.ExportRecord, error) {
	record, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || record.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", shared.ErrExportNotFound, id)
	}
	return record, nil
}

// ListByOwner returns ownerID's exports, newest first. A limit of zero or less returns all of them.
func (r *ExportRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ExportRecord, error) {
	return r.list(ctx, map[string]any{"owner_id": ownerID}, limit)
}

// List returns every export, newest first. A limit of zero or less returns all of them.
func (r *ExportRepository) List(ctx context.Context, limit int) ([]*models.ExportRecord, error) {
	return r.list(ctx, nil, limit)
}

// Delete removes the export row. The file on disk is left to the caller.
func (r *ExportRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM exports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrExportNotFound, id)
	}
	return nil
}

func (r *ExportRepository) list(ctx context.Context, criteria map[string]any, limit int) ([]*models.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE 1 = 1`
	args := []any{}

	if owner, ok := criteria["owner_id"].(string); ok {
		query += " AND owner_id = ?"
		args = append(args, owner)
	}

	query += " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	records := []*models.ExportRecord{}
	for rows.Next() {
		record, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(row scanner) (*models.ExportRecord, error) {
	var (
		record  models.ExportRecord
		skipped string
	)

	err := row.Scan(
		&record.ID, &record.OwnerID, &record.Filename, &record.Path,
		&record.RowCount, &record.PlaylistCount, &skipped, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.Skipped, err = decodeSkipped(skipped); err != nil {
		return nil, err
	}
	return &record, nil
}

func encodeSkipped(skipped []models.SkippedPlaylist) (string, error) {
	if len(skipped) == 0 {
		return "", nil
	}
	data, err := json.Marshal(skipped)
	if err != nil {
		return "", fmt.Errorf("failed to encode skipped playlists: %w", err)
	}
	return string(data), nil
}

func decodeSkipped(data string) ([]models.SkippedPlaylist, error) {
	if data == "" {
		return nil, nil
	}
	var skipped []models.SkippedPlaylist
	if err := json.Unmarshal([]byte(data), &skipped); err != nil {
		return nil, fmt.Errorf("failed to decode skipped playlists: %w", err)
	}
	return skipped, nil
}
