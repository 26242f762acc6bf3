package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/codescope/codedb/pkg/driver"
)

// identPattern restricts table and column names to plain SQL identifiers.
// CRUD requests interpolate identifiers into generated SQL; values always
// travel as bound parameters.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// orderByPattern additionally allows an ASC/DESC suffix.
var orderByPattern = regexp.MustCompile(`(?i)^[A-Za-z_][A-Za-z0-9_]*(\s+(ASC|DESC))?$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// sortedKeys returns map keys in deterministic order so generated SQL is
// stable for journaling and tests.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreateTable creates a table from an explicit schema.
func (d *Driver) CreateTable(ctx context.Context, schema driver.TableSchema) error {
	sqlText, err := createTableSQL(schema)
	if err != nil {
		return err
	}

	db, err := d.sharedDB()
	if err != nil {
		return err
	}

	_, execErr := db.ExecContext(ctx, sqlText)
	d.journalStatement(sqlText, nil, "", execErr)
	if execErr != nil {
		d.rollbackShared(ctx)
		return fmt.Errorf("create table %q: %w", schema.Name, execErr)
	}
	return nil
}

// createTableSQL renders a CREATE TABLE statement from a schema.
func createTableSQL(schema driver.TableSchema) (string, error) {
	if err := validIdent(schema.Name); err != nil {
		return "", err
	}
	if len(schema.Columns) == 0 {
		return "", fmt.Errorf("table %q has no columns", schema.Name)
	}

	cols := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		if err := validIdent(col.Name); err != nil {
			return "", fmt.Errorf("table %q: %w", schema.Name, err)
		}

		def := fmt.Sprintf("%q %s", col.Name, col.Type)
		if col.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if !col.Nullable && !col.PrimaryKey {
			def += " NOT NULL"
		}
		if col.Default != nil {
			def += fmt.Sprintf(" DEFAULT %s", literalDefault(col.Default))
		}
		cols = append(cols, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", schema.Name, strings.Join(cols, ", ")), nil
}

// literalDefault renders a column default as a SQL literal.
func literalDefault(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DropTable drops a table by name.
func (d *Driver) DropTable(ctx context.Context, name string) error {
	if err := validIdent(name); err != nil {
		return err
	}

	db, err := d.sharedDB()
	if err != nil {
		return err
	}

	sqlText := fmt.Sprintf("DROP TABLE IF EXISTS %q", name)
	_, execErr := db.ExecContext(ctx, sqlText)
	d.journalStatement(sqlText, nil, "", execErr)
	if execErr != nil {
		d.rollbackShared(ctx)
		return fmt.Errorf("drop table %q: %w", name, execErr)
	}
	return nil
}

// Insert inserts one row and returns its rowid.
func (d *Driver) Insert(ctx context.Context, table string, data map[string]any) (*driver.ExecResult, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("insert into %q: empty data", table)
	}

	keys := sortedKeys(data)
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		if err := validIdent(k); err != nil {
			return nil, fmt.Errorf("insert into %q: %w", table, err)
		}
		cols[i] = fmt.Sprintf("%q", k)
		placeholders[i] = "?"
		args[i] = data[k]
	}

	sqlText := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	return d.runMutation(ctx, sqlText, args)
}

// Update updates rows matching the where mapping.
func (d *Driver) Update(ctx context.Context, table string, where, data map[string]any) (*driver.ExecResult, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if len(where) == 0 || len(data) == 0 {
		return nil, fmt.Errorf("update %q: empty where or data", table)
	}

	setKeys := sortedKeys(data)
	sets := make([]string, len(setKeys))
	args := make([]any, 0, len(setKeys)+len(where))
	for i, k := range setKeys {
		if err := validIdent(k); err != nil {
			return nil, fmt.Errorf("update %q: %w", table, err)
		}
		sets[i] = fmt.Sprintf("%q = ?", k)
		args = append(args, data[k])
	}

	clause, whereArgs, err := whereClause(where)
	if err != nil {
		return nil, fmt.Errorf("update %q: %w", table, err)
	}
	args = append(args, whereArgs...)

	sqlText := fmt.Sprintf("UPDATE %q SET %s WHERE %s", table, strings.Join(sets, ", "), clause)
	return d.runMutation(ctx, sqlText, args)
}

// Delete deletes rows matching the where mapping.
func (d *Driver) Delete(ctx context.Context, table string, where map[string]any) (*driver.ExecResult, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return nil, fmt.Errorf("delete from %q: empty where", table)
	}

	clause, args, err := whereClause(where)
	if err != nil {
		return nil, fmt.Errorf("delete from %q: %w", table, err)
	}

	sqlText := fmt.Sprintf("DELETE FROM %q WHERE %s", table, clause)
	return d.runMutation(ctx, sqlText, args)
}

// whereClause renders an AND-joined equality clause. Nil values become
// IS NULL.
func whereClause(where map[string]any) (string, []any, error) {
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if err := validIdent(k); err != nil {
			return "", nil, err
		}
		if where[k] == nil {
			parts = append(parts, fmt.Sprintf("%q IS NULL", k))
			continue
		}
		parts = append(parts, fmt.Sprintf("%q = ?", k))
		args = append(args, where[k])
	}
	return strings.Join(parts, " AND "), args, nil
}

// runMutation executes a generated mutation on the shared connection,
// journals it, and rolls back on failure.
func (d *Driver) runMutation(ctx context.Context, sqlText string, args []any) (*driver.ExecResult, error) {
	db, err := d.sharedDB()
	if err != nil {
		return nil, err
	}

	res, execErr := db.ExecContext(ctx, sqlText, args...)
	d.journalStatement(sqlText, paramsForJournal(args), "", execErr)
	if execErr != nil {
		d.rollbackShared(ctx)
		return nil, execErr
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &driver.ExecResult{AffectedRows: affected, LastRowID: lastID}, nil
}

// paramsForJournal renders positional args as a plain list so the journal
// entry replays through the same params path.
func paramsForJournal(args []any) any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}

// Select reads rows from a table.
func (d *Driver) Select(ctx context.Context, query driver.SelectQuery) ([]map[string]any, error) {
	if err := validIdent(query.Table); err != nil {
		return nil, err
	}

	cols := "*"
	if len(query.Columns) > 0 {
		quoted := make([]string, len(query.Columns))
		for i, c := range query.Columns {
			if err := validIdent(c); err != nil {
				return nil, fmt.Errorf("select from %q: %w", query.Table, err)
			}
			quoted[i] = fmt.Sprintf("%q", c)
		}
		cols = strings.Join(quoted, ", ")
	}

	sqlText := fmt.Sprintf("SELECT %s FROM %q", cols, query.Table)
	var args []any

	if len(query.Where) > 0 {
		clause, whereArgs, err := whereClause(query.Where)
		if err != nil {
			return nil, fmt.Errorf("select from %q: %w", query.Table, err)
		}
		sqlText += " WHERE " + clause
		args = whereArgs
	}

	if len(query.OrderBy) > 0 {
		terms := make([]string, len(query.OrderBy))
		for i, term := range query.OrderBy {
			if !orderByPattern.MatchString(strings.TrimSpace(term)) {
				return nil, fmt.Errorf("select from %q: invalid order_by term %q", query.Table, term)
			}
			terms[i] = term
		}
		sqlText += " ORDER BY " + strings.Join(terms, ", ")
	}

	if query.Limit >= 0 {
		sqlText += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			sqlText += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	} else if query.Offset > 0 {
		sqlText += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Offset)
	}

	db, err := d.sharedDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return rowsToMaps(rows)
}
