package main

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Migration outcome statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusAborted = "aborted"
)

// TableResult accumulates per-table transfer outcomes.
type TableResult struct {
	RowsMigrated int64
	RowsSkipped  int64
	Errors       []string
}

// MigrationReport is the single source of truth for what a run did. Table
// workers write to it concurrently.
type MigrationReport struct {
	mu       sync.Mutex
	Started  time.Time
	Finished time.Time
	Tables   map[string]*TableResult
	Warnings []string
	Status   string
}

func newMigrationReport() *MigrationReport {
	return &MigrationReport{
		Started: time.Now(),
		Tables:  make(map[string]*TableResult),
		Status:  StatusSuccess,
	}
}

func (r *MigrationReport) table(name string) *TableResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.Tables[name]
	if t == nil {
		t = &TableResult{}
		r.Tables[name] = t
	}
	return t
}

func (r *MigrationReport) addMigrated(table string, n int64) {
	t := r.table(table)
	r.mu.Lock()
	t.RowsMigrated += n
	r.mu.Unlock()
}

func (r *MigrationReport) addSkipped(table string, n int64) {
	t := r.table(table)
	r.mu.Lock()
	t.RowsSkipped += n
	r.mu.Unlock()
}

func (r *MigrationReport) addTableError(table string, err error) {
	t := r.table(table)
	r.mu.Lock()
	t.Errors = append(t.Errors, err.Error())
	r.mu.Unlock()
}

func (r *MigrationReport) addWarning(format string, args ...any) {
	r.mu.Lock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *MigrationReport) addWarnings(ws []string) {
	if len(ws) == 0 {
		return
	}
	r.mu.Lock()
	r.Warnings = append(r.Warnings, ws...)
	r.mu.Unlock()
}

// finalize stamps the end time and settles the status: any skipped row,
// table error or warning demotes success to partial. An aborted status is
// never overwritten.
func (r *MigrationReport) finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finished = time.Now()
	if r.Status == StatusAborted {
		return
	}
	r.Status = StatusSuccess
	if len(r.Warnings) > 0 {
		r.Status = StatusPartial
	}
	for _, t := range r.Tables {
		if t.RowsSkipped > 0 || len(t.Errors) > 0 {
			r.Status = StatusPartial
		}
	}
}

func (r *MigrationReport) abort() {
	r.mu.Lock()
	r.Status = StatusAborted
	r.Finished = time.Now()
	r.mu.Unlock()
}

func (r *MigrationReport) totalMigrated() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.Tables {
		n += t.RowsMigrated
	}
	return n
}

// print writes the human-readable summary through the standard logger.
func (r *MigrationReport) print() {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	log.Printf("Migration %s in %s", r.Status, r.Finished.Sub(r.Started).Round(time.Millisecond))
	for _, name := range names {
		t := r.Tables[name]
		line := fmt.Sprintf("  %s: %d rows", name, t.RowsMigrated)
		if t.RowsSkipped > 0 {
			line += fmt.Sprintf(", %d skipped", t.RowsSkipped)
		}
		log.Print(line)
		for _, e := range t.Errors {
			log.Printf("    error: %s", e)
		}
	}
	if len(r.Warnings) > 0 {
		log.Printf("Warnings (%d):", len(r.Warnings))
		for _, w := range r.Warnings {
			log.Printf("  %s", w)
		}
	}
}
