package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type sqliteReader struct {
	db       *sql.DB
	warnings []string
}

func (s *sqliteReader) Name() string           { return "SQLite" }
func (s *sqliteReader) SourceDialect() Dialect { return DialectSQLite }
func (s *sqliteReader) Warnings() []string     { return s.warnings }
func (s *sqliteReader) Close() error           { return s.db.Close() }

func (s *sqliteReader) ReadSchema(ctx context.Context) (*Schema, error) {
	tables, err := s.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	schema := &Schema{}
	for _, name := range tables {
		t, err := s.introspectTable(ctx, name)
		if err != nil {
			s.warnings = append(s.warnings, fmt.Sprintf("skipping table %s: %v", name, err))
			continue
		}
		schema.Tables = append(schema.Tables, t)
	}
	return schema, nil
}

func (s *sqliteReader) introspectTable(ctx context.Context, name string) (Table, error) {
	t := Table{Name: name}

	cols, pk, err := s.introspectColumns(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.Columns = cols
	t.PrimaryKey = pk

	fks, err := s.introspectForeignKeys(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.ForeignKeys = fks

	s.markAutoIncrement(ctx, &t)
	return t, nil
}

func (s *sqliteReader) listTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
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

func (s *sqliteReader) introspectColumns(ctx context.Context, tableName string) ([]Column, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", DialectSQLite.quoteIdent(tableName)))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	type pkCol struct {
		name  string
		pkPos int
	}
	var cols []Column
	var pkCols []pkCol

	for rows.Next() {
		var cid, notnull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk); err != nil {
			return nil, nil, err
		}

		col := Column{
			Name:       name,
			NativeType: strings.ToLower(strings.TrimSpace(colType)),
			Nullable:   notnull == 0,
			OrdinalPos: cid + 1,
		}
		if col.NativeType == "" {
			col.NativeType = "blob" // no declared type = BLOB affinity
		}
		if _, p1, _ := splitNativeType(col.NativeType); p1 > 0 {
			col.MaxLength = p1
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)

		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pkPos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	pk := make([]string, len(pkCols))
	for _, pc := range pkCols {
		pk[pc.pkPos-1] = pc.name
	}

	// A single INTEGER PRIMARY KEY is a rowid alias and behaves as
	// auto-increment regardless of the AUTOINCREMENT keyword.
	if len(pkCols) == 1 {
		for i := range cols {
			base, _, _ := splitNativeType(cols[i].NativeType)
			if cols[i].Name == pkCols[0].name && (base == "integer" || base == "int") {
				cols[i].AutoIncrement = true
			}
		}
	}

	return cols, pk, nil
}

// markAutoIncrement flags columns declared AUTOINCREMENT in the original
// CREATE TABLE SQL. Best effort: an unreadable sqlite_master entry only means
// the flag stays unset.
func (s *sqliteReader) markAutoIncrement(ctx context.Context, t *Table) {
	var createSQL sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND name=?",
		t.Name,
	).Scan(&createSQL)
	if err != nil || !createSQL.Valid {
		return
	}
	if !strings.Contains(strings.ToUpper(createSQL.String), "AUTOINCREMENT") {
		return
	}
	upper := strings.ToUpper(createSQL.String)
	idx := strings.Index(upper, "AUTOINCREMENT")
	prefix := strings.TrimRight(createSQL.String[:idx], " \t\n\r")
	tokens := strings.Fields(prefix)
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := strings.ToUpper(tokens[i])
		if tok == "INTEGER" || tok == "PRIMARY" || tok == "KEY" {
			continue
		}
		colName := strings.Trim(tokens[i], ",(\n\r\t \"`")
		if col := t.Column(colName); col != nil {
			col.AutoIncrement = true
		}
		return
	}
}

func (s *sqliteReader) introspectForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA foreign_key_list(%s)", DialectSQLite.quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		fk := ForeignKey{Column: from, RefTable: refTable}
		if to.Valid {
			fk.RefColumn = to.String
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (s *sqliteReader) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", DialectSQLite.quoteIdent(table)),
	).Scan(&n)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func (s *sqliteReader) StreamRows(ctx context.Context, table *Table, fn func(row []any) error) error {
	return streamLiveRows(ctx, s.db, DialectSQLite, table, fn)
}

func (s *sqliteReader) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	objs := &SourceObjects{}

	if err := collectStringRows(s.db,
		"SELECT name FROM sqlite_master WHERE type='view' ORDER BY name",
		&objs.Views); err != nil {
		return nil, fmt.Errorf("introspect views: %w", err)
	}
	if err := collectStringRows(s.db,
		"SELECT name FROM sqlite_master WHERE type='trigger' ORDER BY name",
		&objs.Triggers); err != nil {
		return nil, fmt.Errorf("introspect triggers: %w", err)
	}
	return objs, nil
}
