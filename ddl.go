package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// buildCreateTable renders a CREATE TABLE statement for the target dialect,
// mapping every column type from the source dialect.
func buildCreateTable(t *Table, src, tgt Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", sqlIdent(tgt, t.Name))

	pk := map[string]bool{}
	for _, c := range t.PrimaryKey {
		pk[c] = true
	}
	// Single-column integer PKs become identity columns on the target so
	// inserted ids keep working after the sequence restart.
	identity := ""
	if len(t.PrimaryKey) == 1 {
		if c := t.Column(t.PrimaryKey[0]); c != nil && c.AutoIncrement {
			identity = c.Name
		}
	}

	var defs []string
	for i := range t.Columns {
		c := &t.Columns[i]
		defs = append(defs, columnDef(c, src, tgt, c.Name == identity))
	}
	if len(t.PrimaryKey) > 0 && !(tgt == DialectSQLite && identity != "") {
		quoted := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			quoted[i] = sqlIdent(tgt, c)
		}
		defs = append(defs, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		ref := sqlIdent(tgt, fk.RefTable)
		if fk.RefColumn != "" {
			ref += fmt.Sprintf(" (%s)", sqlIdent(tgt, fk.RefColumn))
		}
		defs = append(defs, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s",
			sqlIdent(tgt, fk.Column), ref))
	}

	b.WriteString(strings.Join(defs, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

func columnDef(c *Column, src, tgt Dialect, identity bool) string {
	typ := mapType(c.NativeType, src, tgt)
	if identity {
		switch tgt {
		case DialectPostgres:
			if strings.HasPrefix(typ, "bigint") {
				typ = "bigserial"
			} else {
				typ = "serial"
			}
		case DialectMySQL:
			typ += " AUTO_INCREMENT"
		case DialectSQLite:
			// Declared type must be INTEGER for the rowid alias to apply.
			typ = "INTEGER PRIMARY KEY AUTOINCREMENT"
		}
	}

	def := fmt.Sprintf("  %s %s", sqlIdent(tgt, c.Name), typ)
	if tgt == DialectSQLite && identity {
		return def
	}
	if !c.Nullable {
		def += " NOT NULL"
	}
	if c.Default != nil && !identity {
		if d, ok := mapDefault(*c.Default, tgt); ok {
			def += " DEFAULT " + d
		}
	}
	return def
}

// mapDefault carries simple literal defaults across dialects and drops
// expressions that would not parse on the target.
func mapDefault(def string, tgt Dialect) (string, bool) {
	def = strings.TrimSpace(def)
	if def == "" {
		return "", false
	}
	upper := strings.ToUpper(def)
	switch upper {
	case "NULL", "TRUE", "FALSE":
		return strings.ToLower(upper), true
	case "CURRENT_TIMESTAMP", "NOW()", "CURRENT_TIMESTAMP()":
		return "CURRENT_TIMESTAMP", true
	}
	if def[0] == '\'' {
		return def, true
	}
	if _, err := fmt.Sscanf(def, "%f", new(float64)); err == nil {
		return def, true
	}
	return "", false
}

// ensureTables creates every missing target table in dependency order.
// Existing tables are left as they are; their row data is handled by the
// clear pass.
func ensureTables(ctx context.Context, db *sql.DB, tgt Dialect, schema *Schema, src Dialect, order []string) error {
	for _, name := range order {
		t := schema.Table(name)
		if t == nil {
			continue
		}
		exists, err := tableExists(ctx, db, tgt, name)
		if err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if exists {
			continue
		}
		ddl := buildCreateTable(t, src, tgt)
		log.Printf("Creating table %s", name)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, d Dialect, table string) (bool, error) {
	var query string
	switch d {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1`
	case DialectMySQL:
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_name = ?`
	case DialectSQLite:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
