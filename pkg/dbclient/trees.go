package dbclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/codescope/codedb/pkg/models"
	"github.com/codescope/codedb/pkg/protocol"
	"github.com/codescope/codedb/pkg/request"
)

// SaveAST replaces the stored AST for a file. Saving for a file that
// does not exist returns models.ErrFileNotFound.
func (d *DB) SaveAST(ctx context.Context, fileID int64, tree map[string]any) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyAST, map[string]any{
		"file_id": fileID,
		"action":  "replace",
		"tree":    tree,
	})
	return treeSaveError(fileID, err)
}

// PatchAST merges top-level keys into the stored AST for a file.
func (d *DB) PatchAST(ctx context.Context, fileID int64, patch map[string]any) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyAST, map[string]any{
		"file_id": fileID,
		"action":  "patch",
		"tree":    patch,
	})
	return treeSaveError(fileID, err)
}

// DeleteAST removes the stored AST for a file.
func (d *DB) DeleteAST(ctx context.Context, fileID int64) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyAST, map[string]any{
		"file_id": fileID,
		"action":  "delete",
	})
	return err
}

// GetAST returns the stored AST document for a file, or
// models.ErrAttributeNotFound when the file has none.
func (d *DB) GetAST(ctx context.Context, fileID int64) (map[string]any, error) {
	return d.getTree(ctx, request.MethodQueryAST, fileID)
}

// SaveCST replaces the stored CST for a file. Saving for a file that
// does not exist returns models.ErrFileNotFound.
func (d *DB) SaveCST(ctx context.Context, fileID int64, tree map[string]any) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyCST, map[string]any{
		"file_id": fileID,
		"action":  "replace",
		"tree":    tree,
	})
	return treeSaveError(fileID, err)
}

// PatchCST merges top-level keys into the stored CST for a file.
func (d *DB) PatchCST(ctx context.Context, fileID int64, patch map[string]any) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyCST, map[string]any{
		"file_id": fileID,
		"action":  "patch",
		"tree":    patch,
	})
	return treeSaveError(fileID, err)
}

// DeleteCST removes the stored CST for a file.
func (d *DB) DeleteCST(ctx context.Context, fileID int64) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodModifyCST, map[string]any{
		"file_id": fileID,
		"action":  "delete",
	})
	return err
}

// GetCST returns the stored CST document for a file.
func (d *DB) GetCST(ctx context.Context, fileID int64) (map[string]any, error) {
	return d.getTree(ctx, request.MethodQueryCST, fileID)
}

// treeSaveError converts the daemon's not-found code into the typed
// sentinel so callers can errors.Is against models.ErrFileNotFound.
func treeSaveError(fileID int64, err error) error {
	if err == nil {
		return nil
	}
	var respErr *protocol.ResponseError
	if errors.As(err, &respErr) && respErr.Code == protocol.CodeNotFound {
		return fmt.Errorf("%w: %d", models.ErrFileNotFound, fileID)
	}
	return err
}

func (d *DB) getTree(ctx context.Context, method string, fileID int64) (map[string]any, error) {
	rows, err := d.rpc.CallExpectRows(ctx, method, map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrAttributeNotFound
	}
	tree, _ := rows[0]["tree"].(map[string]any)
	return tree, nil
}
