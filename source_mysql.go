package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type mysqlReader struct {
	db       *sql.DB
	dbName   string
	warnings []string
}

func (m *mysqlReader) Name() string           { return "MySQL" }
func (m *mysqlReader) SourceDialect() Dialect { return DialectMySQL }
func (m *mysqlReader) Warnings() []string     { return m.warnings }
func (m *mysqlReader) Close() error           { return m.db.Close() }

func (m *mysqlReader) ReadSchema(ctx context.Context) (*Schema, error) {
	tables, err := m.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	schema := &Schema{}
	for _, name := range tables {
		t, err := m.introspectTable(ctx, name)
		if err != nil {
			m.warnings = append(m.warnings, fmt.Sprintf("skipping table %s: %v", name, err))
			continue
		}
		schema.Tables = append(schema.Tables, t)
	}
	return schema, nil
}

func (m *mysqlReader) introspectTable(ctx context.Context, name string) (Table, error) {
	t := Table{Name: name}

	cols, err := m.introspectColumns(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.Columns = cols

	pk, err := m.introspectPrimaryKey(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.PrimaryKey = pk

	fks, err := m.introspectForeignKeys(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.ForeignKeys = fks
	return t, nil
}

func (m *mysqlReader) listTables(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`,
		m.dbName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (m *mysqlReader) introspectColumns(ctx context.Context, tableName string) ([]Column, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE,
		        COALESCE(CHARACTER_MAXIMUM_LENGTH, 0),
		        IS_NULLABLE, COLUMN_DEFAULT, EXTRA, ORDINAL_POSITION
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		m.dbName, tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable, extra string
		var dflt sql.NullString
		if err := rows.Scan(
			&c.Name, &c.NativeType, &c.MaxLength,
			&nullable, &dflt, &extra, &c.OrdinalPos,
		); err != nil {
			return nil, err
		}
		c.NativeType = strings.ToLower(c.NativeType)
		c.Nullable = nullable == "YES"
		c.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		if dflt.Valid {
			c.Default = &dflt.String
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (m *mysqlReader) introspectPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT COLUMN_NAME
		 FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		 ORDER BY ORDINAL_POSITION`,
		m.dbName, tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		pk = append(pk, name)
	}
	return pk, rows.Err()
}

func (m *mysqlReader) introspectForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT kcu.COLUMN_NAME, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME
		 FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		 WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ?
		   AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		 ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`,
		m.dbName, tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (m *mysqlReader) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", DialectMySQL.quoteIdent(table)),
	).Scan(&n)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func (m *mysqlReader) StreamRows(ctx context.Context, table *Table, fn func(row []any) error) error {
	return streamLiveRows(ctx, m.db, DialectMySQL, table, fn)
}

func (m *mysqlReader) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	objs := &SourceObjects{}

	if err := collectStringRows(m.db, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.VIEWS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME
	`, &objs.Views, m.dbName); err != nil {
		return nil, fmt.Errorf("introspect views: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT ROUTINE_TYPE, ROUTINE_NAME
		FROM INFORMATION_SCHEMA.ROUTINES
		WHERE ROUTINE_SCHEMA = ?
		ORDER BY ROUTINE_TYPE, ROUTINE_NAME
	`, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("introspect routines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var routineType, routineName string
		if err := rows.Scan(&routineType, &routineName); err != nil {
			return nil, fmt.Errorf("scan routines: %w", err)
		}
		objs.Routines = append(objs.Routines, fmt.Sprintf("%s %s", strings.ToUpper(routineType), routineName))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routines: %w", err)
	}

	if err := collectStringRows(m.db, `
		SELECT TRIGGER_NAME
		FROM INFORMATION_SCHEMA.TRIGGERS
		WHERE TRIGGER_SCHEMA = ?
		ORDER BY TRIGGER_NAME
	`, &objs.Triggers, m.dbName); err != nil {
		return nil, fmt.Errorf("introspect triggers: %w", err)
	}

	return objs, nil
}

// streamLiveRows runs a full-table SELECT and feeds each row to fn through
// the driver's cursor, never materializing the table.
func streamLiveRows(ctx context.Context, db *sql.DB, d Dialect, table *Table, fn func(row []any) error) error {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = sqlIdent(d, c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), sqlIdent(d, table.Name))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	values := make([]any, len(table.Columns))
	ptrs := make([]any, len(table.Columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}
