package main

import "fmt"

// ValidationError means the request itself is bad. It aborts the run before
// any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectionError means an endpoint is unreachable. Fatal for the run when it
// hits either endpoint during startup.
type ConnectionError struct {
	Endpoint string // "source" or "target"
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError names a malformed dump statement. The statement is skipped and
// the error recorded as a report warning.
type ParseError struct {
	Line int
	Stmt string
	Msg  string
}

func (e *ParseError) Error() string {
	stmt := e.Stmt
	if len(stmt) > 80 {
		stmt = stmt[:80] + "..."
	}
	return fmt.Sprintf("parse error at line %d: %s (statement: %s)", e.Line, e.Msg, stmt)
}

// IntrospectionError means schema metadata could not be read for one table.
// That table is excluded from the run.
type IntrospectionError struct {
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspect %s: %v", e.Table, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// TypeMappingError is a per-row coercion failure. The row is skipped and the
// error recorded.
type TypeMappingError struct {
	Column     string
	SourceType string
	TargetType string
	Msg        string
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("column %s: cannot coerce %s value to %s: %s",
		e.Column, e.SourceType, e.TargetType, e.Msg)
}

// ValueOverflowError means a numeric value does not fit the target column's
// integer width. Never truncated silently: the row is skipped and recorded.
type ValueOverflowError struct {
	Column     string
	TargetType string
	Value      int64
}

func (e *ValueOverflowError) Error() string {
	return fmt.Sprintf("column %s: value %d overflows %s", e.Column, e.Value, e.TargetType)
}

// ClearError means one table could not be cleared. The table is excluded from
// import to avoid a partial overwrite; the run continues.
type ClearError struct {
	Table string
	Err   error
}

func (e *ClearError) Error() string {
	return fmt.Sprintf("clear %s: %v", e.Table, e.Err)
}

func (e *ClearError) Unwrap() error { return e.Err }

// TransactionError is a per-batch insert failure after the retry. The batch
// is rolled back; the run continues with the next batch.
type TransactionError struct {
	Table string
	Batch int
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s batch %d: %v", e.Table, e.Batch, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
