package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"
)

type transferOptions struct {
	BatchSize       int
	Workers         int
	TruncateStrings bool
	EnumDefaults    map[string]string
}

// runTransfers copies every table, level by level. Tables inside one level
// share no foreign key edges, so they move in parallel up to opts.Workers.
// A failed table does not stop the run; its errors land in the report.
func runTransfers(ctx context.Context, src SchemaReader, db *sql.DB, tgt Dialect,
	schema *Schema, levels [][]string, skip map[string]bool,
	opts transferOptions, report *MigrationReport) error {

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, name := range level {
			if skip[name] {
				continue
			}
			t := schema.Table(name)
			if t == nil {
				continue
			}
			g.Go(func() error {
				return transferTable(gctx, src, db, tgt, t, opts, report)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// tableTransfer carries the per-table state of one copy: the prepared insert
// text, mapped target types, and which per-column warnings already fired.
type tableTransfer struct {
	src       SchemaReader
	db        *sql.DB
	tgt       Dialect
	table     *Table
	tgtTypes  []string
	insertSQL string
	opts      transferOptions
	report    *MigrationReport

	total    int64 // estimated source rows, negative when unknown
	migrated int64
	rowIndex int64
	warned   map[string]bool
}

func transferTable(ctx context.Context, src SchemaReader, db *sql.DB, tgt Dialect,
	t *Table, opts transferOptions, report *MigrationReport) error {

	tt := &tableTransfer{
		src:    src,
		db:     db,
		tgt:    tgt,
		table:  t,
		opts:   opts,
		report: report,
		warned: make(map[string]bool),
	}
	for i := range t.Columns {
		tt.tgtTypes = append(tt.tgtTypes, mapType(t.Columns[i].NativeType, src.SourceDialect(), tgt))
	}
	tt.insertSQL = buildInsert(tgt, t)

	total, err := src.CountRows(ctx, t.Name)
	if err != nil {
		total = -1
	}
	tt.total = total
	if total >= 0 {
		log.Printf("Migrating table %s (%d rows)", t.Name, total)
	} else {
		log.Printf("Migrating table %s", t.Name)
	}

	batch := make([]sourceRow, 0, opts.BatchSize)
	err = src.StreamRows(ctx, t, func(row []any) error {
		tt.rowIndex++
		coerced, ok := tt.coerceRow(row)
		if !ok {
			return nil
		}
		batch = append(batch, sourceRow{index: tt.rowIndex, vals: coerced})
		if len(batch) >= opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tt.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		report.addTableError(t.Name, err)
		return nil
	}
	if len(batch) > 0 {
		if err := tt.flush(ctx, batch); err != nil {
			report.addTableError(t.Name, err)
			return nil
		}
	}
	// Ensure the table shows up in the report even when empty.
	report.addMigrated(t.Name, 0)
	return nil
}

func buildInsert(d Dialect, t *Table) string {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i := range t.Columns {
		cols[i] = sqlIdent(d, t.Columns[i].Name)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlIdent(d, t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// coerceRow converts one source row into target-ready values. A value the
// target cannot hold fails the whole row: it is skipped and recorded rather
// than written corrupted.
func (tt *tableTransfer) coerceRow(row []any) ([]any, bool) {
	t := tt.table
	out := make([]any, len(t.Columns))
	for i := range t.Columns {
		col := &t.Columns[i]
		var val any
		if i < len(row) {
			val = row[i]
		}

		if val == nil {
			if col.Nullable {
				continue
			}
			sub, warn := substituteNull(*col, tt.tgtTypes[i], tt.tgt, tt.opts.EnumDefaults)
			if warn {
				tt.warnOnce(col.Name, "substitute",
					"table %s column %s: NULL in NOT NULL column replaced with empty value (set enum_defaults to control this)",
					t.Name, col.Name)
			}
			out[i] = sub
			continue
		}

		coerced, err := coerceValue(val, *col, tt.tgtTypes[i], tt.tgt)
		if err != nil {
			tt.report.addSkipped(t.Name, 1)
			tt.report.addTableError(t.Name, fmt.Errorf("row %d: %w", tt.rowIndex, err))
			return nil, false
		}

		if tt.opts.TruncateStrings && col.MaxLength > 0 && categoryOf(tt.tgtTypes[i]) == catText {
			trimmed, didTrim := truncateIfNeeded(coerced, col.MaxLength)
			if didTrim {
				tt.warnOnce(col.Name, "truncate",
					"table %s column %s: values truncated to %d characters",
					t.Name, col.Name, col.MaxLength)
			}
			coerced = trimmed
		}
		out[i] = coerced
	}
	return out, true
}

func (tt *tableTransfer) warnOnce(column, kind, format string, args ...any) {
	key := kind + ":" + column
	if tt.warned[key] {
		return
	}
	tt.warned[key] = true
	tt.report.addWarning(format, args...)
}

// sourceRow pairs a coerced row with its 1-based position in the source
// stream. Rows dropped during coercion leave gaps, so the position cannot be
// recovered from the batch offset alone.
type sourceRow struct {
	index int64
	vals  []any
}

// flush writes one batch inside a transaction. On failure the transaction is
// rolled back and retried once whole; if it still fails, the rows go in one
// by one so a single bad row only costs itself.
func (tt *tableTransfer) flush(ctx context.Context, batch []sourceRow) error {
	err := tt.execBatch(ctx, batch)
	if err == nil {
		tt.logProgress()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Printf("Batch failed on table %s, retrying: %v", tt.table.Name, err)
	if err = tt.execBatch(ctx, batch); err == nil {
		tt.logProgress()
		return nil
	}
	tt.report.addTableError(tt.table.Name,
		&TransactionError{Table: tt.table.Name, Batch: tt.batchNumber(), Err: err})

	log.Printf("Retry failed on table %s, isolating rows", tt.table.Name)
	tt.execRowByRow(ctx, batch)
	return ctx.Err()
}

func (tt *tableTransfer) execBatch(ctx context.Context, batch []sourceRow) error {
	err := withRelaxedFKChecks(ctx, tt.db, tt.tgt, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, tt.insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range batch {
			if _, err := stmt.ExecContext(ctx, row.vals...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	tt.migrated += int64(len(batch))
	tt.report.addMigrated(tt.table.Name, int64(len(batch)))
	return nil
}

// execRowByRow gives every row of a failed batch its own transaction and
// records the ones the target rejects.
func (tt *tableTransfer) execRowByRow(ctx context.Context, batch []sourceRow) {
	for _, row := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := tt.execBatch(ctx, []sourceRow{row}); err != nil {
			tt.report.addSkipped(tt.table.Name, 1)
			tt.report.addTableError(tt.table.Name,
				fmt.Errorf("row %d: %w", row.index, err))
		}
	}
}

func (tt *tableTransfer) batchNumber() int {
	if tt.opts.BatchSize <= 0 {
		return 1
	}
	return int(tt.migrated/int64(tt.opts.BatchSize)) + 1
}

func (tt *tableTransfer) logProgress() {
	if tt.total > 0 {
		log.Printf("  %s: %d/%d rows", tt.table.Name, tt.migrated, tt.total)
	} else {
		log.Printf("  %s: %d rows", tt.table.Name, tt.migrated)
	}
}
