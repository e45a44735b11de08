package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type postgresReader struct {
	db       *sql.DB
	warnings []string
}

func (p *postgresReader) Name() string           { return "PostgreSQL" }
func (p *postgresReader) SourceDialect() Dialect { return DialectPostgres }
func (p *postgresReader) Warnings() []string     { return p.warnings }
func (p *postgresReader) Close() error           { return p.db.Close() }

func (p *postgresReader) ReadSchema(ctx context.Context) (*Schema, error) {
	tables, err := p.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	schema := &Schema{}
	for _, name := range tables {
		t, err := p.introspectTable(ctx, name)
		if err != nil {
			p.warnings = append(p.warnings, fmt.Sprintf("skipping table %s: %v", name, err))
			continue
		}
		schema.Tables = append(schema.Tables, t)
	}
	return schema, nil
}

func (p *postgresReader) introspectTable(ctx context.Context, name string) (Table, error) {
	t := Table{Name: name}

	cols, err := p.introspectColumns(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.Columns = cols

	pk, err := p.introspectPrimaryKey(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.PrimaryKey = pk

	fks, err := p.introspectForeignKeys(ctx, name)
	if err != nil {
		return t, &IntrospectionError{Table: name, Err: err}
	}
	t.ForeignKeys = fks
	return t, nil
}

func (p *postgresReader) listTables(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`,
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

func (p *postgresReader) introspectColumns(ctx context.Context, tableName string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT column_name, data_type, udt_name,
		        COALESCE(character_maximum_length, 0),
		        COALESCE(numeric_precision, 0), COALESCE(numeric_scale, 0),
		        is_nullable, column_default, ordinal_position
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var dataType, udtName, nullable string
		var precision, scale int64
		var dflt sql.NullString
		if err := rows.Scan(
			&c.Name, &dataType, &udtName, &c.MaxLength,
			&precision, &scale,
			&nullable, &dflt, &c.OrdinalPos,
		); err != nil {
			return nil, err
		}
		c.NativeType = pgNativeType(dataType, udtName, c.MaxLength, precision, scale)
		c.Nullable = nullable == "YES"
		if dflt.Valid {
			c.Default = &dflt.String
			// Serial columns surface as integer + nextval() default.
			if strings.HasPrefix(dflt.String, "nextval(") {
				c.AutoIncrement = true
				c.Default = nil
			}
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// pgNativeType rebuilds a parameterized declared type from the
// information_schema pieces: "character varying"/150 → "varchar(150)".
func pgNativeType(dataType, udtName string, maxLen, precision, scale int64) string {
	switch dataType {
	case "character varying":
		if maxLen > 0 {
			return fmt.Sprintf("varchar(%d)", maxLen)
		}
		return "varchar"
	case "character":
		if maxLen > 0 {
			return fmt.Sprintf("char(%d)", maxLen)
		}
		return "char"
	case "numeric":
		if precision > 0 && scale > 0 {
			return fmt.Sprintf("numeric(%d,%d)", precision, scale)
		}
		if precision > 0 {
			return fmt.Sprintf("numeric(%d)", precision)
		}
		return "numeric"
	case "timestamp without time zone":
		return "timestamp"
	case "timestamp with time zone":
		return "timestamptz"
	case "time without time zone", "time with time zone":
		return "time"
	case "ARRAY", "USER-DEFINED":
		return strings.ToLower(udtName)
	default:
		return strings.ToLower(dataType)
	}
}

func (p *postgresReader) introspectPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		   AND tc.table_schema = kcu.table_schema
		 WHERE tc.table_schema = 'public' AND tc.table_name = $1
		   AND tc.constraint_type = 'PRIMARY KEY'
		 ORDER BY kcu.ordinal_position`,
		tableName,
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

func (p *postgresReader) introspectForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT kcu.column_name, ccu.table_name, ccu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		   AND tc.table_schema = kcu.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name
		   AND tc.table_schema = ccu.table_schema
		 WHERE tc.table_schema = 'public' AND tc.table_name = $1
		   AND tc.constraint_type = 'FOREIGN KEY'
		 ORDER BY tc.constraint_name, kcu.ordinal_position`,
		tableName,
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

func (p *postgresReader) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", DialectPostgres.quoteIdent(table)),
	).Scan(&n)
	if err != nil {
		return -1, err
	}
	return n, nil
}

func (p *postgresReader) StreamRows(ctx context.Context, table *Table, fn func(row []any) error) error {
	return streamLiveRows(ctx, p.db, DialectPostgres, table, fn)
}

func (p *postgresReader) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	objs := &SourceObjects{}

	if err := collectStringRows(p.db, `
		SELECT table_name
		FROM information_schema.views
		WHERE table_schema = 'public'
		ORDER BY table_name
	`, &objs.Views); err != nil {
		return nil, fmt.Errorf("introspect views: %w", err)
	}

	if err := collectStringRows(p.db, `
		SELECT routine_type || ' ' || routine_name
		FROM information_schema.routines
		WHERE routine_schema = 'public'
		ORDER BY routine_type, routine_name
	`, &objs.Routines); err != nil {
		return nil, fmt.Errorf("introspect routines: %w", err)
	}

	if err := collectStringRows(p.db, `
		SELECT DISTINCT trigger_name
		FROM information_schema.triggers
		WHERE trigger_schema = 'public'
		ORDER BY trigger_name
	`, &objs.Triggers); err != nil {
		return nil, fmt.Errorf("introspect triggers: %w", err)
	}

	return objs, nil
}
