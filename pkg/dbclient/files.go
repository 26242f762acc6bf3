package dbclient

import (
	"context"
	"fmt"

	"github.com/codescope/codedb/pkg/models"
)

// CreateFile registers one file row. Path is project-relative. The ID is
// assigned by the database and written back into the model.
func (d *DB) CreateFile(ctx context.Context, file *models.File) error {
	ts := now()
	if file.CreatedAt == 0 {
		file.CreatedAt = ts
	}
	file.UpdatedAt = ts

	id, err := d.insertRow(ctx, models.File{}.TableName(), map[string]any{
		"project_id":     file.ProjectID,
		"path":           file.Path,
		"language":       file.Language,
		"hash":           file.Hash,
		"size":           file.Size,
		"deleted":        file.Deleted,
		"needs_chunking": file.NeedsChunking,
		"created_at":     file.CreatedAt,
		"updated_at":     file.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("create file %q: %w", file.Path, err)
	}
	file.ID = id
	return nil
}

// GetFile loads one file by ID.
func (d *DB) GetFile(ctx context.Context, id int64) (*models.File, error) {
	rows, err := d.selectRows(ctx, models.File{}.TableName(), map[string]any{"id": id}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrFileNotFound, id)
	}

	var file models.File
	if err := decodeRow(rows[0], &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetProjectFiles returns a project's files ordered by path. Soft-deleted
// rows are filtered out unless includeDeleted is set.
func (d *DB) GetProjectFiles(ctx context.Context, projectID string, includeDeleted bool) ([]models.File, error) {
	where := map[string]any{"project_id": projectID}
	if !includeDeleted {
		where["deleted"] = false
	}

	rows, err := d.selectRows(ctx, models.File{}.TableName(), where, []string{"path"}, 0)
	if err != nil {
		return nil, err
	}
	return decodeFiles(rows)
}

// GetFilesNeedingChunking returns up to limit files flagged for index
// refresh, oldest first.
func (d *DB) GetFilesNeedingChunking(ctx context.Context, limit int) ([]models.File, error) {
	rows, err := d.selectRows(ctx, models.File{}.TableName(),
		map[string]any{"needs_chunking": true, "deleted": false},
		[]string{"updated_at"}, limit)
	if err != nil {
		return nil, err
	}
	return decodeFiles(rows)
}

// GetProjectFilesNeedingChunking returns up to limit of one project's
// flagged files, oldest first.
func (d *DB) GetProjectFilesNeedingChunking(ctx context.Context, projectID string, limit int) ([]models.File, error) {
	rows, err := d.selectRows(ctx, models.File{}.TableName(),
		map[string]any{"project_id": projectID, "needs_chunking": true, "deleted": false},
		[]string{"updated_at"}, limit)
	if err != nil {
		return nil, err
	}
	return decodeFiles(rows)
}

// ProjectsNeedingChunking returns the IDs of projects holding at least
// one live file flagged for index refresh.
func (d *DB) ProjectsNeedingChunking(ctx context.Context) ([]string, error) {
	rows, err := d.Query(ctx,
		"SELECT DISTINCT project_id FROM files WHERE (deleted = 0 OR deleted IS NULL) AND needs_chunking = 1", nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["project_id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountFiles returns the total number of file rows, soft-deleted rows
// included.
func (d *DB) CountFiles(ctx context.Context) (int64, error) {
	rows, err := d.Query(ctx, "SELECT COUNT(*) AS n FROM files", nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("count files: empty result")
	}
	n, _ := rows[0]["n"].(float64)
	return int64(n), nil
}

// UpdateFile saves the mutable file attributes.
func (d *DB) UpdateFile(ctx context.Context, file *models.File) error {
	file.UpdatedAt = now()
	affected, err := d.updateRows(ctx, models.File{}.TableName(),
		map[string]any{"id": file.ID},
		map[string]any{
			"language":       file.Language,
			"hash":           file.Hash,
			"size":           file.Size,
			"deleted":        file.Deleted,
			"needs_chunking": file.NeedsChunking,
			"updated_at":     file.UpdatedAt,
		})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", models.ErrFileNotFound, file.ID)
	}
	return nil
}

// MarkFileDeleted soft-deletes a file row, keeping its derived indexes
// queryable until the next cleanup sweep.
func (d *DB) MarkFileDeleted(ctx context.Context, id int64) error {
	affected, err := d.updateRows(ctx, models.File{}.TableName(),
		map[string]any{"id": id},
		map[string]any{"deleted": true, "updated_at": now()})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", models.ErrFileNotFound, id)
	}
	return nil
}

// MarkNeedsChunking flags a file for index refresh by the worker.
func (d *DB) MarkNeedsChunking(ctx context.Context, id int64) error {
	affected, err := d.updateRows(ctx, models.File{}.TableName(),
		map[string]any{"id": id},
		map[string]any{"needs_chunking": true, "updated_at": now()})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", models.ErrFileNotFound, id)
	}
	return nil
}

func decodeFiles(rows []map[string]any) ([]models.File, error) {
	files := make([]models.File, 0, len(rows))
	for _, row := range rows {
		var f models.File
		if err := decodeRow(row, &f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
