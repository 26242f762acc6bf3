package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
)

// GetTableInfo describes a table's columns via PRAGMA table_info. A table
// that does not exist yields an empty slice: callers probe for tables by
// checking the column count.
func (d *Driver) GetTableInfo(ctx context.Context, name string) ([]driver.ColumnInfo, error) {
	if err := validIdent(name); err != nil {
		return nil, err
	}

	db, err := d.sharedDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, fmt.Errorf("table info for %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	info := make([]driver.ColumnInfo, 0)
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info for %q: %w", name, err)
		}
		if b, ok := dflt.([]byte); ok {
			dflt = string(b)
		}
		info = append(info, driver.ColumnInfo{
			Name:       colName,
			Type:       colType,
			Nullable:   notNull == 0,
			Default:    dflt,
			PrimaryKey: pk > 0,
		})
	}
	return info, rows.Err()
}

// SyncSchema sweeps the schema definition and creates every missing table.
// Every table that already exists is left in place and reported in
// modified_tables; per-table failures are collected without aborting the
// sweep. When backupDir is set a copy of the database file is taken
// before the first change.
func (d *Driver) SyncSchema(ctx context.Context, def map[string]driver.TableSchema, backupDir string) (*driver.SyncReport, error) {
	if _, err := d.sharedDB(); err != nil {
		return nil, err
	}

	report := &driver.SyncReport{
		CreatedTables:  []string{},
		ModifiedTables: []string{},
	}

	names := make([]string, 0, len(def))
	for name := range def {
		names = append(names, name)
	}
	sort.Strings(names)

	backedUp := false
	for _, name := range names {
		schema := def[name]
		if schema.Name == "" {
			schema.Name = name
		}

		existing, err := d.GetTableInfo(ctx, name)
		if err != nil {
			report.Errors = addError(report.Errors, name, err)
			continue
		}

		if len(existing) == 0 {
			if backupDir != "" && !backedUp {
				if err := d.backupDatabase(backupDir); err != nil {
					return report, fmt.Errorf("schema backup: %w", err)
				}
				backedUp = true
			}
			if err := d.CreateTable(ctx, schema); err != nil {
				report.Errors = addError(report.Errors, name, err)
				continue
			}
			report.CreatedTables = append(report.CreatedTables, name)
			continue
		}

		report.ModifiedTables = append(report.ModifiedTables, name)
		if schemaDiffers(existing, schema) {
			logger.Warn("Table is missing declared columns, not migrated", "table", name)
		}
	}

	logger.Info("Schema sync completed",
		"created", len(report.CreatedTables),
		"modified", len(report.ModifiedTables),
		"errors", len(report.Errors))
	return report, nil
}

func addError(errs map[string]string, table string, err error) map[string]string {
	if errs == nil {
		errs = make(map[string]string)
	}
	errs[table] = err.Error()
	return errs
}

// schemaDiffers reports whether the live column set is missing any defined
// column. Extra live columns are tolerated.
func schemaDiffers(existing []driver.ColumnInfo, schema driver.TableSchema) bool {
	live := make(map[string]bool, len(existing))
	for _, col := range existing {
		live[col.Name] = true
	}
	for _, col := range schema.Columns {
		if !live[col.Name] {
			return true
		}
	}
	return false
}

// backupDatabase copies the database file into backupDir with a timestamped
// name. In-memory databases have nothing to back up.
func (d *Driver) backupDatabase(backupDir string) error {
	if d.config.Path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}

	src, err := os.ReadFile(d.config.Path)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(d.config.Path), time.Now().Format("20060102-150405"))
	dst := filepath.Join(backupDir, name)
	if err := os.WriteFile(dst, src, 0o644); err != nil {
		return err
	}

	logger.Info("Database backed up before schema sync", "backup", dst)
	return nil
}
