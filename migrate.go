package main

import (
	"context"
	"log"
)

// Tables written by migration frameworks, never copied: the target
// application's own tooling manages them.
var frameworkTables = map[string]bool{
	"alembic_version":       true,
	"django_migrations":     true,
	"flyway_schema_history": true,
	"schema_migrations":     true,
}

// Coordinator phases, in order.
type migrationState string

const (
	stateValidating   migrationState = "validating"
	statePreparing    migrationState = "preparing"
	stateTransferring migrationState = "transferring"
	stateReporting    migrationState = "reporting"
	stateCompleted    migrationState = "completed"
	stateAborted      migrationState = "aborted"
)

// Migrator drives one migration end to end: read the source schema, order
// the tables, prepare the target, move the rows, report.
type Migrator struct {
	req     *MigrationRequest
	confirm ConfirmFunc
	state   migrationState
}

func newMigrator(req *MigrationRequest, confirm ConfirmFunc) *Migrator {
	return &Migrator{req: req, confirm: confirm, state: stateValidating}
}

// Run executes the migration. The returned report is valid on every path,
// including an operator abort; err is non-nil only for failures that stop
// the run outright.
func (m *Migrator) Run(ctx context.Context) (report *MigrationReport, err error) {
	report = newMigrationReport()

	src, err := openSource(ctx, m.req.Source)
	if err != nil {
		report.abort()
		return report, err
	}
	defer src.Close()
	log.Printf("Source: %s (%s)", src.Name(), redactedLocation(m.req.Source))

	schema, err := src.ReadSchema(ctx)
	if err != nil {
		report.abort()
		return report, err
	}
	warned := len(src.Warnings())
	report.addWarnings(src.Warnings())

	schema = m.filterSchema(schema, report)
	if len(schema.Tables) == 0 {
		report.abort()
		return report, validationErrorf("no tables to migrate")
	}

	report.addWarnings(collectLossyTypeWarnings(schema, src.SourceDialect(), m.req.Target.Kind))

	order, orderWarnings := importOrder(schema, m.req.TableOrder)
	report.addWarnings(orderWarnings)
	levels := importLevels(schema, order)

	m.state = statePreparing
	db, err := openDB(ctx, m.req.Target.Kind, m.req.Target.Location, false)
	if err != nil {
		report.abort()
		return report, &ConnectionError{Endpoint: "target", Err: err}
	}
	defer db.Close()
	log.Printf("Target: %s (%s)", m.req.Target.Kind, redactedLocation(m.req.Target))

	// Nothing on the target is touched before this gate.
	if !m.confirm(order) {
		m.state = stateAborted
		report.abort()
		log.Print("Migration aborted by operator, target untouched")
		return report, nil
	}

	if err := ensureTables(ctx, db, m.req.Target.Kind, schema, src.SourceDialect(), order); err != nil {
		report.abort()
		return report, err
	}

	failed := clearTables(ctx, db, m.req.Target.Kind, order, report)

	m.state = stateTransferring
	opts := transferOptions{
		BatchSize:       m.req.BatchSize,
		Workers:         m.req.Workers,
		TruncateStrings: m.req.TruncateStrings,
		EnumDefaults:    m.req.EnumDefaults,
	}
	if err := runTransfers(ctx, src, db, m.req.Target.Kind, schema, levels, failed, opts, report); err != nil {
		report.abort()
		return report, err
	}
	// Dump sources keep recording parse warnings while rows stream.
	if late := src.Warnings(); len(late) > warned {
		report.addWarnings(late[warned:])
	}

	restartSequences(ctx, db, m.req.Target.Kind, schema, order, report)

	m.state = stateReporting
	m.reportSourceObjects(ctx, src, report)

	report.finalize()
	m.state = stateCompleted
	log.Printf("Migrated %d rows across %d tables", report.totalMigrated(), len(order))
	return report, nil
}

// filterSchema drops excluded and framework tables. Foreign keys pointing at
// dropped tables are kept; the orderer ignores edges to absent tables.
func (m *Migrator) filterSchema(schema *Schema, report *MigrationReport) *Schema {
	excluded := make(map[string]bool, len(m.req.ExcludeTables))
	for _, t := range m.req.ExcludeTables {
		excluded[t] = true
	}

	out := &Schema{}
	for i := range schema.Tables {
		t := schema.Tables[i]
		switch {
		case excluded[t.Name]:
			log.Printf("Excluding table %s", t.Name)
		case frameworkTables[t.Name]:
			report.addWarning("skipping framework table %s", t.Name)
		default:
			out.Tables = append(out.Tables, t)
		}
	}
	return out
}

func (m *Migrator) reportSourceObjects(ctx context.Context, src SchemaReader, report *MigrationReport) {
	objs, err := src.SourceObjects(ctx)
	if err != nil {
		report.addWarning("could not list source views/routines/triggers: %v", err)
		return
	}
	report.addWarnings(objs.warnings())
}
