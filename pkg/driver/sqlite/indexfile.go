package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/models"
)

// IndexFile refreshes the derived indexes for one file: it resolves the
// file row from the project registration, invokes the parser, and replaces
// the stored content, chunks, and syntax trees in a single transaction.
// The needs_chunking flag is cleared only when everything persisted.
func (d *Driver) IndexFile(ctx context.Context, filePath, projectID string) (map[string]any, error) {
	gdb, err := d.gormDB()
	if err != nil {
		return nil, err
	}

	var project models.Project
	if err := gdb.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %q is not registered", projectID)
		}
		return nil, fmt.Errorf("load project %q: %w", projectID, err)
	}

	relPath, err := relativeToRoot(project.RootPath, filePath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	parsed, err := d.parser.ParseFile(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", filePath, err)
	}

	now := models.Now()
	var file models.File

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Find or create the file row under its project-relative path.
		res := tx.Where(&models.File{ProjectID: projectID, Path: relPath}).First(&file)
		if res.Error != nil {
			if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return res.Error
			}
			file = models.File{
				ProjectID: projectID,
				Path:      relPath,
				CreatedAt: now,
			}
		}

		file.Language = parsed.Language
		file.Size = int64(len(parsed.Content))
		file.NeedsChunking = false
		file.Deleted = false
		file.UpdatedAt = now
		if err := tx.Save(&file).Error; err != nil {
			return fmt.Errorf("save file row: %w", err)
		}

		content := models.CodeContent{
			FileID:    file.ID,
			Content:   parsed.Content,
			LineCount: parsed.LineCount,
			UpdatedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}},
			UpdateAll: true,
		}).Create(&content).Error; err != nil {
			return fmt.Errorf("save content: %w", err)
		}

		// Chunks are replaced wholesale; partial chunk sets are worse
		// than none.
		if err := tx.Where("file_id = ?", file.ID).Delete(&models.CodeChunk{}).Error; err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		for _, c := range parsed.Chunks {
			chunk := models.CodeChunk{
				FileID:    file.ID,
				Ordinal:   c.Ordinal,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Content:   c.Content,
				Symbol:    c.Symbol,
			}
			if err := tx.Create(&chunk).Error; err != nil {
				return fmt.Errorf("save chunk %d: %w", c.Ordinal, err)
			}
		}

		if err := saveTree(tx, file.ID, parsed.AST, now, &models.ASTTree{}); err != nil {
			return fmt.Errorf("save ast: %w", err)
		}
		if err := saveTree(tx, file.ID, parsed.CST, now, &models.CSTTree{}); err != nil {
			return fmt.Errorf("save cst: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logger.Debug("File indexed",
		"file_id", file.ID,
		"path", relPath,
		"chunks", len(parsed.Chunks),
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000)

	return map[string]any{
		"file_id":    file.ID,
		"path":       relPath,
		"project_id": projectID,
		"language":   parsed.Language,
		"line_count": parsed.LineCount,
		"chunks":     len(parsed.Chunks),
		"has_ast":    parsed.AST != nil,
		"has_cst":    parsed.CST != nil,
	}, nil
}

// relativeToRoot resolves an absolute file path against a project root.
// Paths escaping the root are rejected.
func relativeToRoot(rootPath, filePath string) (string, error) {
	rel, err := filepath.Rel(rootPath, filePath)
	if err != nil {
		return "", fmt.Errorf("resolve %q under project root %q: %w", filePath, rootPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q is outside project root %q", filePath, rootPath)
	}
	return filepath.ToSlash(rel), nil
}

// saveTree upserts (or clears, when tree is nil) the syntax-tree row for a
// file. The concrete zero model selects the target table.
func saveTree(tx *gorm.DB, fileID int64, tree map[string]any, now float64, model any) error {
	if tree == nil {
		return tx.Where("file_id = ?", fileID).Delete(model).Error
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}

	switch m := model.(type) {
	case *models.ASTTree:
		m.FileID = fileID
		m.Tree = string(raw)
		m.UpdatedAt = now
	case *models.CSTTree:
		m.FileID = fileID
		m.Tree = string(raw)
		m.UpdatedAt = now
	default:
		return fmt.Errorf("unsupported tree model %T", model)
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		UpdateAll: true,
	}).Create(model).Error
}
