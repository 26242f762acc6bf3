package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/models"
)

// QueryAST returns the stored AST for a file as row mappings. The filter
// matches top-level keys of the decoded tree document.
func (d *Driver) QueryAST(ctx context.Context, fileID int64, filter map[string]any) ([]map[string]any, error) {
	var row models.ASTTree
	found, err := d.loadTreeRow(ctx, fileID, &row)
	if err != nil || !found {
		return []map[string]any{}, err
	}
	return treeRows(row.FileID, row.Tree, row.UpdatedAt, filter)
}

// QueryCST returns the stored CST for a file as row mappings.
func (d *Driver) QueryCST(ctx context.Context, fileID int64, filter map[string]any) ([]map[string]any, error) {
	var row models.CSTTree
	found, err := d.loadTreeRow(ctx, fileID, &row)
	if err != nil || !found {
		return []map[string]any{}, err
	}
	return treeRows(row.FileID, row.Tree, row.UpdatedAt, filter)
}

// ModifyAST replaces, patches, or deletes the stored AST for a file.
func (d *Driver) ModifyAST(ctx context.Context, fileID int64, action string, tree map[string]any) (*driver.ExecResult, error) {
	var row models.ASTTree
	return d.modifyTree(ctx, fileID, action, tree, &row)
}

// ModifyCST replaces, patches, or deletes the stored CST for a file.
func (d *Driver) ModifyCST(ctx context.Context, fileID int64, action string, tree map[string]any) (*driver.ExecResult, error) {
	var row models.CSTTree
	return d.modifyTree(ctx, fileID, action, tree, &row)
}

// loadTreeRow fetches the single tree row for a file. A missing row is not
// an error; queries over unindexed files return empty results.
func (d *Driver) loadTreeRow(ctx context.Context, fileID int64, row any) (bool, error) {
	gdb, err := d.gormDB()
	if err != nil {
		return false, err
	}

	res := gdb.WithContext(ctx).First(row, "file_id = ?", fileID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, res.Error
	}
	return true, nil
}

// treeRows decodes a stored tree document and applies a shallow filter.
func treeRows(fileID int64, stored string, updatedAt float64, filter map[string]any) ([]map[string]any, error) {
	var tree map[string]any
	if err := json.Unmarshal([]byte(stored), &tree); err != nil {
		return nil, fmt.Errorf("decode stored tree for file %d: %w", fileID, err)
	}

	for key, want := range filter {
		got, ok := tree[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return []map[string]any{}, nil
		}
	}

	return []map[string]any{{
		"file_id":    fileID,
		"tree":       tree,
		"updated_at": updatedAt,
	}}, nil
}

// modifyTree applies one tree mutation. The concrete row type selects the
// target table (ast_trees or cst_trees).
func (d *Driver) modifyTree(ctx context.Context, fileID int64, action string, tree map[string]any, row any) (*driver.ExecResult, error) {
	gdb, err := d.gormDB()
	if err != nil {
		return nil, err
	}
	gdb = gdb.WithContext(ctx)

	switch action {
	case "delete":
		res := gdb.Where("file_id = ?", fileID).Delete(row)
		if res.Error != nil {
			return nil, res.Error
		}
		return &driver.ExecResult{AffectedRows: res.RowsAffected}, nil

	case "replace":
		return d.storeTree(gdb, fileID, tree, row)

	case "patch":
		existing := map[string]any{}
		found, err := d.loadTreeRow(ctx, fileID, row)
		if err != nil {
			return nil, err
		}
		if found {
			stored := treeDocument(row)
			if err := json.Unmarshal([]byte(stored), &existing); err != nil {
				return nil, fmt.Errorf("decode stored tree for file %d: %w", fileID, err)
			}
		}
		for k, v := range tree {
			existing[k] = v
		}
		return d.storeTree(gdb, fileID, existing, row)

	default:
		return nil, fmt.Errorf("unsupported tree action %q", action)
	}
}

// storeTree upserts the tree document for a file. Saving against a file
// that does not exist is refused rather than creating an orphan row.
func (d *Driver) storeTree(gdb *gorm.DB, fileID int64, tree map[string]any, row any) (*driver.ExecResult, error) {
	var fileCount int64
	if err := gdb.Model(&models.File{}).Where("id = ?", fileID).Count(&fileCount).Error; err != nil {
		return nil, err
	}
	if fileCount == 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrFileNotFound, fileID)
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}

	// The ID is zeroed so the upsert conflicts on file_id, not on a
	// previously loaded primary key.
	now := models.Now()
	switch m := row.(type) {
	case *models.ASTTree:
		m.ID = 0
		m.FileID = fileID
		m.Tree = string(raw)
		m.UpdatedAt = now
	case *models.CSTTree:
		m.ID = 0
		m.FileID = fileID
		m.Tree = string(raw)
		m.UpdatedAt = now
	default:
		return nil, fmt.Errorf("unsupported tree model %T", row)
	}

	res := gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		UpdateAll: true,
	}).Create(row)
	if res.Error != nil {
		return nil, res.Error
	}
	return &driver.ExecResult{AffectedRows: res.RowsAffected}, nil
}

// treeDocument extracts the stored JSON document from a loaded tree row.
func treeDocument(row any) string {
	switch m := row.(type) {
	case *models.ASTTree:
		return m.Tree
	case *models.CSTTree:
		return m.Tree
	default:
		return "{}"
	}
}
