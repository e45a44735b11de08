package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ConfirmFunc asks the operator to approve destructive work on the target.
// It receives the tables about to be cleared and returns true to proceed.
type ConfirmFunc func(tables []string) bool

// clearTables empties the listed target tables in reverse import order so
// child rows go before their parents. Each table is cleared in its own
// transaction; a failure is recorded and that table is dropped from the run
// so stale rows are never mixed with migrated ones.
func clearTables(ctx context.Context, db *sql.DB, d Dialect, order []string, report *MigrationReport) (failed map[string]bool) {
	failed = make(map[string]bool)
	for _, table := range reversed(order) {
		if err := clearTable(ctx, db, d, table); err != nil {
			cerr := &ClearError{Table: table, Err: err}
			report.addTableError(table, cerr)
			report.addWarning("skipping table %s: %v", table, cerr)
			failed[table] = true
			continue
		}
		log.Printf("Cleared table %s", table)
	}
	return failed
}

func clearTable(ctx context.Context, db *sql.DB, d Dialect, table string) error {
	return withRelaxedFKChecks(ctx, db, d, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", sqlIdent(d, table))); err != nil {
			return err
		}
		return resetSequence(ctx, tx, d, table)
	})
}

// withRelaxedFKChecks runs fn in a transaction with constraint enforcement
// off. Postgres uses SET LOCAL, which reverts with the transaction. The
// MySQL switch is a session variable, so the work runs on a dedicated
// connection and the flag is flipped back before the connection rejoins the
// pool, whether or not fn succeeded. SQLite enforcement is per connection
// and off by default under the modernc driver, so nothing is needed there.
func withRelaxedFKChecks(ctx context.Context, db *sql.DB, d Dialect, fn func(tx *sql.Tx) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if d == DialectMySQL {
		if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return err
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SET FOREIGN_KEY_CHECKS = 1")
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if d == DialectPostgres {
		if _, err := tx.ExecContext(ctx, "SET LOCAL session_replication_role = 'replica'"); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// resetSequence rewinds the table's auto-increment counter so the coming
// import starts from a clean slate.
func resetSequence(ctx context.Context, tx *sql.Tx, d Dialect, table string) error {
	switch d {
	case DialectPostgres:
		// No-op here: setval needs a column name, handled after import.
		return nil
	case DialectMySQL:
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = 1", sqlIdent(d, table)))
		return err
	case DialectSQLite:
		// sqlite_sequence only exists once an AUTOINCREMENT table has
		// been written to, so a failure here is fine.
		_, _ = tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table)
		return nil
	}
	return nil
}

// restartSequences points each table's auto-increment counter past the
// largest migrated id, so the application can insert again immediately.
// Failures are warnings: the data itself is already in place.
func restartSequences(ctx context.Context, db *sql.DB, d Dialect, schema *Schema, order []string, report *MigrationReport) {
	for _, name := range order {
		t := schema.Table(name)
		if t == nil || len(t.PrimaryKey) != 1 {
			continue
		}
		col := t.Column(t.PrimaryKey[0])
		if col == nil || !col.AutoIncrement {
			continue
		}
		if err := restartSequence(ctx, db, d, name, col.Name); err != nil {
			report.addWarning("could not restart sequence for %s.%s: %v", name, col.Name, err)
		}
	}
}

func restartSequence(ctx context.Context, db *sql.DB, d Dialect, table, column string) error {
	qt := sqlIdent(d, table)
	qc := sqlIdent(d, column)

	var max sql.NullInt64
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(%s) FROM %s", qc, qt)).Scan(&max)
	if err != nil {
		return err
	}
	next := max.Int64 + 1

	switch d {
	case DialectPostgres:
		_, err = db.ExecContext(ctx,
			"SELECT setval(pg_get_serial_sequence($1, $2), $3, false)",
			table, column, next)
	case DialectMySQL:
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", qt, next))
	case DialectSQLite:
		if !max.Valid {
			return nil
		}
		_, err = db.ExecContext(ctx,
			"UPDATE sqlite_sequence SET seq = ? WHERE name = ?", max.Int64, table)
	}
	return err
}
