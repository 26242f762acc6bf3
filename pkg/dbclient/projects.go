package dbclient

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/codescope/codedb/pkg/models"
)

// CreateProject registers a source tree. RootPath must be absolute; the
// ID is client-assigned.
func (d *DB) CreateProject(ctx context.Context, name, rootPath, description string) (*models.Project, error) {
	if !filepath.IsAbs(rootPath) {
		return nil, fmt.Errorf("project root must be absolute: %q", rootPath)
	}

	ts := now()
	project := &models.Project{
		ID:          newID(),
		RootPath:    filepath.Clean(rootPath),
		Name:        name,
		Description: description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	if _, err := d.insertRow(ctx, models.Project{}.TableName(), map[string]any{
		"id":          project.ID,
		"root_path":   project.RootPath,
		"name":        project.Name,
		"description": project.Description,
		"created_at":  project.CreatedAt,
		"updated_at":  project.UpdatedAt,
	}); err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	return project, nil
}

// GetProject loads one project by ID.
func (d *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	rows, err := d.selectRows(ctx, models.Project{}.TableName(), map[string]any{"id": id}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrProjectNotFound, id)
	}

	var project models.Project
	if err := decodeRow(rows[0], &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProjectByRoot loads one project by its root path.
func (d *DB) GetProjectByRoot(ctx context.Context, rootPath string) (*models.Project, error) {
	rows, err := d.selectRows(ctx, models.Project{}.TableName(),
		map[string]any{"root_path": filepath.Clean(rootPath)}, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: root %s", models.ErrProjectNotFound, rootPath)
	}

	var project models.Project
	if err := decodeRow(rows[0], &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateProject saves name and description changes. The root path of a
// registered project is immutable.
func (d *DB) UpdateProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = now()
	affected, err := d.updateRows(ctx, models.Project{}.TableName(),
		map[string]any{"id": project.ID},
		map[string]any{
			"name":        project.Name,
			"description": project.Description,
			"updated_at":  project.UpdatedAt,
		})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrProjectNotFound, project.ID)
	}
	return nil
}

// DeleteProject removes a project registration. File rows and derived
// indexes are cleaned up separately.
func (d *DB) DeleteProject(ctx context.Context, id string) error {
	affected, err := d.deleteRows(ctx, models.Project{}.TableName(), map[string]any{"id": id})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrProjectNotFound, id)
	}
	return nil
}

// ListProjects returns all registered projects ordered by creation time.
func (d *DB) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := d.selectRows(ctx, models.Project{}.TableName(), nil, []string{"created_at"}, 0)
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(rows))
	for _, row := range rows {
		var p models.Project
		if err := decodeRow(row, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}
