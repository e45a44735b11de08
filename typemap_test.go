package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSplitNativeType(t *testing.T) {
	tests := []struct {
		in   string
		base string
		p1   int64
		p2   int64
	}{
		{"varchar(200)", "varchar", 200, 0},
		{"VARCHAR(64)", "varchar", 64, 0},
		{"decimal(10,2)", "decimal", 10, 2},
		{"bigint", "bigint", 0, 0},
		{"tinyint(1)", "tinyint", 1, 0},
		{"enum('a','b')", "enum", 0, 0},
		{"  text  ", "text", 0, 0},
		{"int unsigned", "int", 0, 0},
		{"bigint unsigned", "bigint", 0, 0},
		{"smallint unsigned zerofill", "smallint", 0, 0},
		{"int(10) unsigned", "int", 10, 0},
	}
	for _, tt := range tests {
		base, p1, p2 := splitNativeType(tt.in)
		if base != tt.base || p1 != tt.p1 || p2 != tt.p2 {
			t.Errorf("splitNativeType(%q) = (%q, %d, %d), want (%q, %d, %d)",
				tt.in, base, p1, p2, tt.base, tt.p1, tt.p2)
		}
	}
}

func TestMapType(t *testing.T) {
	tests := []struct {
		name   string
		native string
		src    Dialect
		tgt    Dialect
		want   string
	}{
		{"mysql bigint to pg", "bigint", DialectMySQL, DialectPostgres, "bigint"},
		{"mysql bigint to sqlite", "bigint", DialectMySQL, DialectSQLite, "INTEGER"},
		{"mysql varchar to pg", "varchar(150)", DialectMySQL, DialectPostgres, "varchar(150)"},
		{"mysql varchar to sqlite", "varchar(150)", DialectMySQL, DialectSQLite, "TEXT"},
		{"mysql datetime to pg", "datetime", DialectMySQL, DialectPostgres, "timestamp"},
		{"pg timestamp to mysql", "timestamp", DialectPostgres, DialectMySQL, "DATETIME"},
		{"mysql json to pg", "json", DialectMySQL, DialectPostgres, "jsonb"},
		{"pg jsonb to mysql", "jsonb", DialectPostgres, DialectMySQL, "JSON"},
		{"mysql enum to pg", "enum('a','b')", DialectMySQL, DialectPostgres, "varchar"},
		{"mysql enum to sqlite", "enum('a','b')", DialectMySQL, DialectSQLite, "TEXT"},
		{"mysql tinyint1 to pg", "tinyint(1)", DialectMySQL, DialectPostgres, "boolean"},
		{"pg boolean to mysql", "boolean", DialectPostgres, DialectMySQL, "TINYINT(1)"},
		{"pg boolean to sqlite", "boolean", DialectPostgres, DialectSQLite, "INTEGER"},
		{"sqlite int is 64-bit", "integer", DialectSQLite, DialectPostgres, "bigint"},
		{"sqlite int to mysql", "int", DialectSQLite, DialectMySQL, "BIGINT"},
		{"mysql int unsigned to pg", "int unsigned", DialectMySQL, DialectPostgres, "bigint"},
		{"mysql bigint unsigned to pg", "bigint unsigned", DialectMySQL, DialectPostgres, "numeric(20)"},
		{"pg serial to mysql", "serial", DialectPostgres, DialectMySQL, "INT"},
		{"pg uuid to mysql", "uuid", DialectPostgres, DialectMySQL, "VARCHAR(36)"},
		{"mysql decimal to pg", "decimal(10,2)", DialectMySQL, DialectPostgres, "numeric(10,2)"},
		{"same dialect passes through", "geometry", DialectMySQL, DialectMySQL, "geometry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapType(tt.native, tt.src, tt.tgt); got != tt.want {
				t.Errorf("mapType(%q, %s, %s) = %q, want %q", tt.native, tt.src, tt.tgt, got, tt.want)
			}
		})
	}
}

// The mapper is total: no combination of types and dialects may come back
// empty.
func TestMapTypeTotal(t *testing.T) {
	natives := []string{
		"bigint", "varchar(255)", "text", "datetime", "json", "blob",
		"geometry", "point", "interval", "tsvector", "what even is this", "",
	}
	dialects := []Dialect{DialectPostgres, DialectMySQL, DialectSQLite}
	for _, src := range dialects {
		for _, tgt := range dialects {
			for _, n := range natives {
				if src == tgt && n != "" {
					continue
				}
				if got := mapType(n, src, tgt); got == "" {
					t.Errorf("mapType(%q, %s, %s) returned empty", n, src, tgt)
				}
			}
		}
	}
}

func TestMapTypeUnknownFallsBack(t *testing.T) {
	got, known := mapTypeKnown("geometry", DialectMySQL, DialectPostgres)
	if known {
		t.Error("geometry should not be a known type")
	}
	if got != "text" {
		t.Errorf("unknown type maps to %q, want text", got)
	}
	got, known = mapTypeKnown("tsvector", DialectPostgres, DialectMySQL)
	if known || got != "LONGTEXT" {
		t.Errorf("mapTypeKnown(tsvector) = (%q, %v), want (LONGTEXT, false)", got, known)
	}
}

func TestCoerceValueBool(t *testing.T) {
	col := Column{Name: "active", NativeType: "tinyint(1)"}

	got, err := coerceValue(int64(1), col, "boolean", DialectPostgres)
	if err != nil || got != true {
		t.Fatalf("coerce 1 to pg boolean = (%v, %v), want true", got, err)
	}
	got, err = coerceValue(true, col, "INTEGER", DialectSQLite)
	if err != nil || got != int64(1) {
		t.Fatalf("coerce true to sqlite = (%v, %v), want 1", got, err)
	}
	got, err = coerceValue([]byte("0"), col, "TINYINT(1)", DialectMySQL)
	if err != nil || got != int64(0) {
		t.Fatalf("coerce \"0\" to mysql = (%v, %v), want 0", got, err)
	}
	if _, err = coerceValue(int64(7), col, "boolean", DialectPostgres); err == nil {
		t.Fatal("expected error coercing 7 to boolean")
	}
}

func TestCoerceValueIntOverflow(t *testing.T) {
	col := Column{Name: "n", NativeType: "bigint"}

	if _, err := coerceValue(int64(3000000000), col, "INT", DialectMySQL); err == nil {
		t.Fatal("expected overflow error for 3000000000 into INT")
	} else {
		var oe *ValueOverflowError
		if !errors.As(err, &oe) {
			t.Fatalf("expected ValueOverflowError, got %T: %v", err, err)
		}
		if oe.Column != "n" || oe.Value != 3000000000 {
			t.Errorf("overflow error fields = %+v", oe)
		}
	}

	got, err := coerceValue(int64(3000000000), col, "bigint", DialectPostgres)
	if err != nil || got != int64(3000000000) {
		t.Fatalf("bigint holds 3000000000: got (%v, %v)", got, err)
	}
	if _, err := coerceValue(int64(200), col, "tinyint", DialectMySQL); err == nil {
		t.Fatal("expected overflow error for 200 into tinyint")
	}
}

func TestCoerceValueTimestamp(t *testing.T) {
	col := Column{Name: "created_at", NativeType: "datetime"}

	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	got, err := coerceValue(now, col, "timestamp", DialectPostgres)
	if err != nil || got != now {
		t.Fatalf("time.Time passes through: got (%v, %v)", got, err)
	}

	got, err = coerceValue("2024-05-01 12:30:00", col, "timestamp", DialectPostgres)
	if err != nil {
		t.Fatalf("string timestamp: %v", err)
	}
	if tv, ok := got.(time.Time); !ok || !tv.Equal(now) {
		t.Fatalf("string timestamp parsed to %v, want %v", got, now)
	}

	// Zero timestamps have no cross-dialect meaning and become NULL.
	got, err = coerceValue(time.Time{}, col, "timestamp", DialectPostgres)
	if err != nil || got != nil {
		t.Fatalf("zero time = (%v, %v), want nil", got, err)
	}

	if _, err = coerceValue("not a date", col, "timestamp", DialectPostgres); err == nil {
		t.Fatal("expected error for unparsable timestamp")
	}
}

func TestCoerceValueText(t *testing.T) {
	col := Column{Name: "name", NativeType: "varchar(50)"}

	got, err := coerceValue([]byte("hello\x00world"), col, "varchar(50)", DialectPostgres)
	if err != nil || got != "helloworld" {
		t.Fatalf("NUL stripped for pg: got (%v, %v)", got, err)
	}
	got, err = coerceValue("hello\x00world", col, "TEXT", DialectSQLite)
	if err != nil || got != "hello\x00world" {
		t.Fatalf("NUL kept for sqlite: got (%v, %v)", got, err)
	}
}

func TestCoerceValueJSON(t *testing.T) {
	col := Column{Name: "payload", NativeType: "json"}

	got, err := coerceValue("{\"a\":\"b\x00\"}", col, "jsonb", DialectPostgres)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"a":"b"}` {
		t.Errorf("NUL not stripped from JSON, got %q", got)
	}

	if _, err := coerceValue("{broken", col, "jsonb", DialectPostgres); err == nil {
		t.Error("invalid JSON document accepted")
	}
}

func TestSubstituteNull(t *testing.T) {
	defaults := map[string]string{"status": "pending"}

	val, warn := substituteNull(Column{Name: "status"}, "varchar(20)", DialectPostgres, defaults)
	if val != "pending" || warn {
		t.Errorf("configured default: got (%v, %v), want (pending, false)", val, warn)
	}

	val, warn = substituteNull(Column{Name: "notes"}, "text", DialectPostgres, defaults)
	if val != "" || !warn {
		t.Errorf("unconfigured text column: got (%v, %v), want (\"\", true)", val, warn)
	}

	val, warn = substituteNull(Column{Name: "notes"}, "text", DialectPostgres, map[string]string{})
	if val != "" || !warn {
		t.Errorf("empty defaults map: got (%v, %v), want (\"\", true)", val, warn)
	}

	val, warn = substituteNull(Column{Name: "count"}, "bigint", DialectPostgres, defaults)
	if val != int64(0) || warn {
		t.Errorf("integer column: got (%v, %v), want (0, false)", val, warn)
	}

	val, warn = substituteNull(Column{Name: "active"}, "boolean", DialectPostgres, defaults)
	if val != false || warn {
		t.Errorf("pg boolean column: got (%v, %v), want (false, false)", val, warn)
	}
	val, _ = substituteNull(Column{Name: "active"}, "INTEGER", DialectSQLite, defaults)
	if val != int64(0) {
		t.Errorf("sqlite boolean column: got %v, want 0", val)
	}

	val, warn = substituteNull(Column{Name: "payload"}, "jsonb", DialectPostgres, defaults)
	if val != "{}" || warn {
		t.Errorf("json column: got (%v, %v), want ({}, false)", val, warn)
	}

	val, _ = substituteNull(Column{Name: "created"}, "timestamp", DialectPostgres, defaults)
	if tv, ok := val.(time.Time); !ok || tv.IsZero() {
		t.Errorf("timestamp column: got %v, want a current time", val)
	}
}

func TestTruncateIfNeeded(t *testing.T) {
	got, did := truncateIfNeeded("hello world", 5)
	if got != "hello" || !did {
		t.Errorf("truncate: got (%v, %v)", got, did)
	}
	got, did = truncateIfNeeded("hi", 5)
	if got != "hi" || did {
		t.Errorf("no truncate needed: got (%v, %v)", got, did)
	}
	// Multibyte strings are cut on rune boundaries.
	got, did = truncateIfNeeded("héllo wörld", 5)
	if got != "héllo" || !did {
		t.Errorf("rune truncate: got (%v, %v)", got, did)
	}
	got, did = truncateIfNeeded(int64(42), 5)
	if got != int64(42) || did {
		t.Errorf("non-string untouched: got (%v, %v)", got, did)
	}
}

func TestCollectLossyTypeWarnings(t *testing.T) {
	schema := &Schema{Tables: []Table{
		{Name: "places", Columns: []Column{
			{Name: "id", NativeType: "bigint"},
			{Name: "location", NativeType: "geometry"},
		}},
	}}
	warnings := collectLossyTypeWarnings(schema, DialectMySQL, DialectPostgres)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %v", len(warnings), warnings)
	}
	if want := "places.location"; !strings.Contains(warnings[0], want) {
		t.Errorf("warning %q does not mention %s", warnings[0], want)
	}
}
