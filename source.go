package main

import (
	"context"
	"fmt"
)

// SchemaReader abstracts a migration source. Live connections and SQL dumps
// produce the same schema shape and the same streamed row tuples, so the
// coordinator depends only on this interface.
type SchemaReader interface {
	// Name returns a human-readable name for logging ("MySQL", "dump file").
	Name() string

	// SourceDialect returns the dialect the rows and types are expressed in.
	SourceDialect() Dialect

	// ReadSchema enumerates tables, columns, primary keys and foreign keys.
	ReadSchema(ctx context.Context) (*Schema, error)

	// CountRows estimates the row count for one table, for progress
	// reporting. A negative value means unknown.
	CountRows(ctx context.Context, table string) (int64, error)

	// StreamRows iterates a table's rows without materializing the table.
	// The callback's slice is only valid for the duration of the call.
	StreamRows(ctx context.Context, table *Table, fn func(row []any) error) error

	// SourceObjects discovers views, routines and triggers that are not
	// migrated and need manual handling. May return nil for dump sources.
	SourceObjects(ctx context.Context) (*SourceObjects, error)

	// Warnings returns recoverable problems found while reading the source
	// (skipped dump statements, detection fallbacks).
	Warnings() []string

	Close() error
}

// openSource returns a SchemaReader for the endpoint, opening a live
// connection or preparing a dump file scan.
func openSource(ctx context.Context, ep EndpointSpec) (SchemaReader, error) {
	if ep.IsDump {
		r, err := newDumpReader(ep.Location, ep.Kind)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	db, err := openDB(ctx, ep.Kind, ep.Location, true)
	if err != nil {
		return nil, &ConnectionError{Endpoint: "source", Err: err}
	}

	switch ep.Kind {
	case DialectMySQL:
		dbName, err := extractMySQLDBName(ep.Location)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &mysqlReader{db: db, dbName: dbName}, nil
	case DialectPostgres:
		return &postgresReader{db: db}, nil
	case DialectSQLite:
		return &sqliteReader{db: db}, nil
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported source dialect %q", ep.Kind)
	}
}
