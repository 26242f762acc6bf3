package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/models"
	"github.com/codescope/codedb/pkg/protocol"
	"github.com/codescope/codedb/pkg/request"
)

// dispatch decodes, validates, and executes one request payload. Every
// outcome is a protocol.Result; transport-level failures are handled
// before the request reaches this point.
func (s *Server) dispatch(ctx context.Context, method string, params map[string]any) protocol.Result {
	req, err := request.Decode(method, params)
	if err != nil {
		var unknown *request.ErrUnknownMethod
		if errors.As(err, &unknown) {
			return protocol.Errorf(protocol.CodeInvalidRequest, "unknown method %q", method)
		}
		return protocol.Errorf(protocol.CodeValidationError, "%v", err)
	}

	if err := req.Validate(); err != nil {
		return protocol.Errorf(protocol.CodeValidationError, "%v", err)
	}

	return s.handle(ctx, req)
}

// handle routes a validated payload to the driver.
func (s *Server) handle(ctx context.Context, req request.Request) protocol.Result {
	switch r := req.(type) {
	case *request.Ping:
		if err := s.drv.Ping(ctx); err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"status": "ok"})

	case *request.GetQueueStats:
		stats := s.q.Stats()
		return protocol.Success(map[string]any{
			"total_enqueued": stats.TotalEnqueued,
			"processed":      stats.Processed,
			"expired":        stats.Expired,
			"rejected":       stats.Rejected,
			"current_size":   stats.CurrentSize,
			"pending":        stats.Pending,
			"max_size":       stats.MaxSize,
		})

	case *request.CreateTable:
		if err := s.drv.CreateTable(ctx, toDriverSchema(r.Schema)); err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"table_name": r.Schema.Name})

	case *request.DropTable:
		if err := s.drv.DropTable(ctx, r.TableName); err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"table_name": r.TableName})

	case *request.Insert:
		res, err := s.drv.Insert(ctx, r.TableName, r.Data)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{
			"affected_rows": res.AffectedRows,
			"lastrowid":     res.LastRowID,
		})

	case *request.Update:
		res, err := s.drv.Update(ctx, r.TableName, r.Where, r.Data)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"affected_rows": res.AffectedRows})

	case *request.Delete:
		res, err := s.drv.Delete(ctx, r.TableName, r.Where)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"affected_rows": res.AffectedRows})

	case *request.Select:
		rows, err := s.drv.Select(ctx, toSelectQuery(r))
		if err != nil {
			return driverError(err)
		}
		return protocol.Data(rows)

	case *request.Execute:
		res, err := s.drv.Execute(ctx, r.SQL, r.Params, r.TransactionID)
		if err != nil {
			return driverError(err)
		}
		if res.Rows != nil {
			return protocol.Data(res.Rows)
		}
		return protocol.Success(map[string]any{
			"affected_rows": res.AffectedRows,
			"lastrowid":     res.LastRowID,
		})

	case *request.ExecuteBatch:
		ops := make([]driver.BatchOp, len(r.Operations))
		for i, op := range r.Operations {
			ops[i] = driver.BatchOp{SQL: op.SQL, Params: op.Params}
		}
		results, err := s.drv.ExecuteBatch(ctx, ops, r.TransactionID)
		if err != nil {
			return driverError(err)
		}
		wire := make([]map[string]any, len(results))
		for i, res := range results {
			wire[i] = map[string]any{
				"affected_rows": res.AffectedRows,
				"lastrowid":     res.LastRowID,
			}
			if res.Rows != nil {
				wire[i]["rows"] = res.Rows
			}
		}
		return protocol.Success(map[string]any{
			"count":   len(results),
			"results": wire,
		})

	case *request.BeginTransaction:
		id, err := s.drv.BeginTransaction(ctx)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"transaction_id": id})

	case *request.CommitTransaction:
		if err := s.drv.CommitTransaction(ctx, r.TransactionID); err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"transaction_id": r.TransactionID})

	case *request.RollbackTransaction:
		if err := s.drv.RollbackTransaction(ctx, r.TransactionID); err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"transaction_id": r.TransactionID})

	case *request.GetTableInfo:
		info, err := s.drv.GetTableInfo(ctx, r.TableName)
		if err != nil {
			return driverError(err)
		}
		cols := make([]map[string]any, len(info))
		for i, c := range info {
			cols[i] = map[string]any{
				"name":        c.Name,
				"type":        c.Type,
				"nullable":    c.Nullable,
				"default":     c.Default,
				"primary_key": c.PrimaryKey,
			}
		}
		return protocol.Data(cols)

	case *request.SyncSchema:
		def := make(map[string]driver.TableSchema, len(r.SchemaDefinition))
		for name, schema := range r.SchemaDefinition {
			def[name] = toDriverSchema(schema)
		}
		report, err := s.drv.SyncSchema(ctx, def, r.BackupDir)
		if err != nil {
			return driverError(err)
		}
		out := map[string]any{
			"created_tables":  report.CreatedTables,
			"modified_tables": report.ModifiedTables,
		}
		if len(report.Errors) > 0 {
			out["errors"] = report.Errors
		}
		return protocol.Success(out)

	case *request.IndexFile:
		result, err := s.drv.IndexFile(ctx, r.FilePath, r.ProjectID)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(result)

	case *request.QueryAST:
		rows, err := s.drv.QueryAST(ctx, r.FileID, r.Filter)
		if err != nil {
			return driverError(err)
		}
		return protocol.Data(rows)

	case *request.QueryCST:
		rows, err := s.drv.QueryCST(ctx, r.FileID, r.Filter)
		if err != nil {
			return driverError(err)
		}
		return protocol.Data(rows)

	case *request.ModifyAST:
		res, err := s.drv.ModifyAST(ctx, r.FileID, r.Action, r.Tree)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"affected_rows": res.AffectedRows})

	case *request.ModifyCST:
		res, err := s.drv.ModifyCST(ctx, r.FileID, r.Action, r.Tree)
		if err != nil {
			return driverError(err)
		}
		return protocol.Success(map[string]any{"affected_rows": res.AffectedRows})

	default:
		return protocol.Errorf(protocol.CodeInternalError, "no handler for method %q", req.Method())
	}
}

// driverError maps a driver failure onto the wire error taxonomy.
func driverError(err error) protocol.Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.Errorf(protocol.CodeTimeout, "operation timed out")
	case errors.Is(err, driver.ErrNotConnected):
		return protocol.Errorf(protocol.CodeConnectionError, "%v", err)
	case errors.Is(err, driver.ErrTransactionNotFound):
		return protocol.Errorf(protocol.CodeTransactionError, "%v", err)
	case errors.Is(err, models.ErrFileNotFound):
		return protocol.Errorf(protocol.CodeNotFound, "%v", err)
	default:
		return protocol.Errorf(protocol.CodeDatabaseError, "%v", err)
	}
}

// toDriverSchema converts a wire table schema into the driver shape.
func toDriverSchema(schema request.TableSchema) driver.TableSchema {
	cols := make([]driver.ColumnDef, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = driver.ColumnDef{
			Name:       c.Name,
			Type:       c.Type,
			Nullable:   c.Nullable,
			Default:    c.Default,
			PrimaryKey: c.PrimaryKey,
		}
	}
	return driver.TableSchema{Name: schema.Name, Columns: cols}
}

// toSelectQuery converts a wire select into the driver shape. An absent
// limit means unlimited.
func toSelectQuery(r *request.Select) driver.SelectQuery {
	q := driver.SelectQuery{
		Table:   r.TableName,
		Where:   r.Where,
		Columns: r.Columns,
		Limit:   -1,
		OrderBy: r.OrderBy,
	}
	if r.Limit != nil {
		q.Limit = *r.Limit
	}
	if r.Offset != nil {
		q.Offset = *r.Offset
	}
	return q
}

var errShuttingDown = fmt.Errorf("server is shutting down")
