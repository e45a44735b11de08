package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql adapter for pgx
	_ "modernc.org/sqlite"             // pure-Go SQLite driver
)

// Dialect identifies one of the supported database families.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

func parseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "":
		return "", fmt.Errorf("dialect is empty")
	default:
		return "", fmt.Errorf("unsupported dialect %q (must be postgres, mysql or sqlite)", s)
	}
}

func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// placeholder returns the dialect's parameter marker for 1-based position i.
func (d Dialect) placeholder(i int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// quoteIdent quotes an identifier for this dialect, always.
func (d Dialect) quoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// dialectFromLocation sniffs a dialect from a connection URL or file path.
// Returns "" when the location carries no marker.
func dialectFromLocation(location string) Dialect {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return DialectPostgres
	case strings.HasPrefix(location, "mysql://"):
		return DialectMySQL
	case strings.HasPrefix(location, "file:"),
		strings.HasSuffix(location, ".db"),
		strings.HasSuffix(location, ".sqlite"),
		strings.HasSuffix(location, ".sqlite3"):
		return DialectSQLite
	default:
		return ""
	}
}

// openDB opens a live connection for the dialect and pings it. SQLite sources
// are opened read-only; a SQLite target gets a single writable connection.
func openDB(ctx context.Context, d Dialect, location string, readOnly bool) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch d {
	case DialectMySQL:
		dsn, derr := mysqlDSNWithReadOptions(location)
		if derr != nil {
			return nil, derr
		}
		db, err = sql.Open(d.driverName(), dsn)
	case DialectPostgres:
		db, err = sql.Open(d.driverName(), location)
	case DialectSQLite:
		uri, derr := sqliteURI(location, readOnly)
		if derr != nil {
			return nil, derr
		}
		db, err = sql.Open(d.driverName(), uri)
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	return db, nil
}

// mysqlDSNWithReadOptions normalizes a MySQL DSN for migration reads: parsed
// time values, client-side interpolation, UTC. Accepts both go-sql-driver
// DSNs and mysql:// URLs.
func mysqlDSNWithReadOptions(baseDSN string) (string, error) {
	if strings.HasPrefix(baseDSN, "mysql://") {
		converted, err := mysqlURLToDSN(baseDSN)
		if err != nil {
			return "", err
		}
		baseDSN = converted
	}
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func mysqlURLToDSN(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}
	var b strings.Builder
	if u.User != nil {
		b.WriteString(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			b.WriteByte(':')
			b.WriteString(pw)
		}
		b.WriteByte('@')
	}
	host := u.Host
	if host == "" {
		host = "localhost:3306"
	}
	fmt.Fprintf(&b, "tcp(%s)", host)
	b.WriteByte('/')
	b.WriteString(strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String(), nil
}

// extractMySQLDBName pulls the database name from a MySQL DSN for
// INFORMATION_SCHEMA queries.
func extractMySQLDBName(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mysql://") {
		converted, err := mysqlURLToDSN(dsn)
		if err != nil {
			return "", err
		}
		dsn = converted
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("cannot extract database name from DSN: empty name")
	}
	return cfg.DBName, nil
}

// sqliteURI builds a file: URI for the driver. In-memory databases are
// rejected: each sql.Open would get a separate DB.
func sqliteURI(dsn string, readOnly bool) (string, error) {
	if dsn == ":memory:" || dsn == "file::memory:" || strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases are not supported")
	}

	if !strings.HasPrefix(dsn, "file:") {
		if readOnly {
			return "file:" + dsn + "?mode=ro", nil
		}
		return "file:" + dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	q := u.Query()
	if readOnly {
		q.Set("mode", "ro")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
