package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// splitNativeType splits a declared type into its lowercased base name and up
// to two numeric parameters: "varchar(200)" → ("varchar", 200, 0),
// "decimal(10,2)" → ("decimal", 10, 2). Enum/set value lists yield no params.
func splitNativeType(native string) (base string, p1, p2 int64) {
	nt := strings.ToLower(strings.TrimSpace(native))
	open := strings.IndexByte(nt, '(')
	if open < 0 {
		return trimTypeAttributes(nt), 0, 0
	}
	base = strings.TrimSpace(nt[:open])
	closeIdx := strings.LastIndexByte(nt, ')')
	if closeIdx <= open {
		return base, 0, 0
	}
	params := nt[open+1 : closeIdx]
	parts := strings.Split(params, ",")
	if len(parts) >= 1 {
		p1, _ = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	}
	if len(parts) >= 2 {
		p2, _ = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	}
	return trimTypeAttributes(base), p1, p2
}

// trimTypeAttributes drops MySQL column attributes that follow the base type
// name. MySQL 8 omits integer display widths, so COLUMN_TYPE reports plain
// "int unsigned" and "bigint unsigned".
func trimTypeAttributes(base string) string {
	for {
		switch {
		case strings.HasSuffix(base, " unsigned"):
			base = strings.TrimSuffix(base, " unsigned")
		case strings.HasSuffix(base, " zerofill"):
			base = strings.TrimSuffix(base, " zerofill")
		default:
			return strings.TrimSpace(base)
		}
	}
}

// mapType converts a native column type between dialects. It is total: any
// type it does not recognize maps to the target's most permissive text type.
func mapType(native string, src, tgt Dialect) string {
	typ, _ := mapTypeKnown(native, src, tgt)
	return typ
}

// mapTypeKnown additionally reports whether the native type was recognized,
// so unknown-type fallbacks can surface as report warnings.
func mapTypeKnown(native string, src, tgt Dialect) (string, bool) {
	if src == tgt {
		if strings.TrimSpace(native) == "" {
			return "text", false
		}
		return native, true
	}
	switch tgt {
	case DialectPostgres:
		return mapTypeToPostgres(native, src)
	case DialectMySQL:
		return mapTypeToMySQL(native, src)
	default:
		return mapTypeToSQLite(native)
	}
}

func isUnsignedType(native string) bool {
	return strings.Contains(strings.ToLower(native), "unsigned")
}

func mapTypeToPostgres(native string, src Dialect) (string, bool) {
	base, p1, p2 := splitNativeType(native)
	unsigned := isUnsignedType(native)

	// SQLite integers are 64-bit regardless of the declared width.
	if src == DialectSQLite {
		switch base {
		case "int", "integer", "tinyint", "smallint", "mediumint", "bigint":
			if p1 == 1 && base == "tinyint" {
				return "boolean", true
			}
			return "bigint", true
		}
	}

	switch base {
	case "bool", "boolean":
		return "boolean", true
	case "tinyint":
		if p1 == 1 {
			return "boolean", true
		}
		return "smallint", true
	case "smallint":
		if unsigned {
			return "integer", true
		}
		return "smallint", true
	case "mediumint", "year":
		return "integer", true
	case "int", "integer":
		if unsigned {
			return "bigint", true
		}
		return "integer", true
	case "bigint":
		if unsigned {
			return "numeric(20)", true
		}
		return "bigint", true
	case "serial":
		return "integer", true
	case "bigserial":
		return "bigint", true
	case "float":
		return "real", true
	case "real", "double", "double precision":
		return "double precision", true
	case "decimal", "numeric":
		if p1 > 0 && p2 > 0 {
			return fmt.Sprintf("numeric(%d,%d)", p1, p2), true
		}
		if p1 > 0 {
			return fmt.Sprintf("numeric(%d)", p1), true
		}
		return "numeric", true
	case "varchar", "character varying", "char", "character", "nvarchar":
		if p1 > 0 {
			return fmt.Sprintf("varchar(%d)", p1), true
		}
		return "text", true
	case "enum":
		return "varchar", true
	case "set":
		return "text", true
	case "text", "tinytext", "mediumtext", "longtext", "clob":
		return "text", true
	case "json", "jsonb":
		return "jsonb", true
	case "timestamp", "datetime":
		return "timestamp", true
	case "timestamptz", "timestamp with time zone":
		return "timestamptz", true
	case "date":
		return "date", true
	case "time":
		return "time", true
	case "uuid":
		return "uuid", true
	case "binary", "varbinary", "bit", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return "bytea", true
	default:
		return "text", false
	}
}

func mapTypeToMySQL(native string, src Dialect) (string, bool) {
	base, p1, p2 := splitNativeType(native)

	if src == DialectSQLite {
		switch base {
		case "int", "integer", "tinyint", "smallint", "mediumint", "bigint":
			if p1 == 1 && base == "tinyint" {
				return "TINYINT(1)", true
			}
			return "BIGINT", true
		}
	}

	switch base {
	case "bool", "boolean":
		return "TINYINT(1)", true
	case "tinyint":
		if p1 == 1 {
			return "TINYINT(1)", true
		}
		return "TINYINT", true
	case "smallint":
		return "SMALLINT", true
	case "mediumint", "year":
		return "INT", true
	case "int", "integer", "serial":
		return "INT", true
	case "bigint", "bigserial":
		return "BIGINT", true
	case "real", "float":
		return "FLOAT", true
	case "double", "double precision":
		return "DOUBLE", true
	case "decimal", "numeric":
		if p1 > 0 && p2 > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", p1, p2), true
		}
		if p1 > 0 {
			return fmt.Sprintf("DECIMAL(%d)", p1), true
		}
		return "DECIMAL", true
	case "varchar", "character varying", "char", "character", "nvarchar":
		if p1 > 0 {
			return fmt.Sprintf("VARCHAR(%d)", p1), true
		}
		return "TEXT", true
	case "uuid":
		return "VARCHAR(36)", true
	case "enum", "set":
		return "TEXT", true
	case "text", "tinytext", "mediumtext", "longtext", "clob":
		return "TEXT", true
	case "json", "jsonb":
		return "JSON", true
	case "timestamp", "timestamptz", "timestamp with time zone", "datetime":
		return "DATETIME", true
	case "date":
		return "DATE", true
	case "time":
		return "TIME", true
	case "binary", "varbinary", "bit", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return "BLOB", true
	default:
		return "LONGTEXT", false
	}
}

func mapTypeToSQLite(native string) (string, bool) {
	base, _, _ := splitNativeType(native)

	switch base {
	case "bool", "boolean", "bit", "year",
		"tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"serial", "bigserial":
		return "INTEGER", true
	case "real", "float", "double", "double precision", "decimal", "numeric":
		return "REAL", true
	case "varchar", "character varying", "char", "character", "nvarchar",
		"text", "tinytext", "mediumtext", "longtext", "clob",
		"enum", "set", "uuid",
		"json", "jsonb",
		"timestamp", "timestamptz", "timestamp with time zone", "datetime",
		"date", "time":
		return "TEXT", true
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return "BLOB", true
	default:
		return "TEXT", false
	}
}

// Value categories for coercion, derived from the target column type.
type typeCategory int

const (
	catText typeCategory = iota
	catBool
	catInt
	catFloat
	catTimestamp
	catDate
	catTime
	catJSON
	catBlob
)

func categoryOf(typ string) typeCategory {
	base, p1, _ := splitNativeType(typ)
	switch base {
	case "bool", "boolean":
		return catBool
	case "tinyint":
		if p1 == 1 {
			return catBool
		}
		return catInt
	case "smallint", "mediumint", "int", "integer", "bigint", "serial", "bigserial", "year":
		return catInt
	case "real", "float", "double", "double precision", "decimal", "numeric":
		return catFloat
	case "timestamp", "timestamptz", "timestamp with time zone", "datetime":
		return catTimestamp
	case "date":
		return catDate
	case "time":
		return catTime
	case "json", "jsonb":
		return catJSON
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return catBlob
	default:
		return catText
	}
}

// intRange returns the value range enforced for an integer target type.
// Types without a narrower dialect width use the full int64 range.
func intRange(typ string) (min, max int64) {
	base, _, _ := splitNativeType(typ)
	switch base {
	case "tinyint":
		return -128, 127
	case "smallint":
		return -32768, 32767
	case "mediumint":
		return -8388608, 8388607
	case "int", "integer", "serial":
		return -2147483648, 2147483647
	default:
		return -9223372036854775808, 9223372036854775807
	}
}

const sqlTimeLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	sqlTimeLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceValue converts one source value for insertion into a target column of
// the given mapped type. nil passes through; NOT NULL substitution happens in
// the transfer engine. Integer overflow is never truncated silently.
func coerceValue(val any, srcCol Column, tgtType string, tgt Dialect) (any, error) {
	if val == nil {
		return nil, nil
	}

	mappingErr := func(format string, args ...any) error {
		return &TypeMappingError{
			Column:     srcCol.Name,
			SourceType: srcCol.NativeType,
			TargetType: tgtType,
			Msg:        fmt.Sprintf(format, args...),
		}
	}

	switch categoryOf(tgtType) {
	case catBool:
		b, err := coerceBool(val, mappingErr)
		if err != nil {
			return nil, err
		}
		// PostgreSQL has a native boolean; MySQL and SQLite store 0/1.
		if tgt == DialectPostgres {
			return b, nil
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case catInt:
		n, err := coerceInt(val, mappingErr)
		if err != nil {
			return nil, err
		}
		min, max := intRange(tgtType)
		if tgt == DialectSQLite {
			// SQLite integers are 64-bit whatever the declared type says.
			min, max = -9223372036854775808, 9223372036854775807
		}
		if n < min || n > max {
			return nil, &ValueOverflowError{Column: srcCol.Name, TargetType: tgtType, Value: n}
		}
		return n, nil

	case catFloat:
		switch v := val.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case []byte:
			return parseFloatValue(string(v), mappingErr)
		case string:
			return parseFloatValue(v, mappingErr)
		}
		return nil, mappingErr("unexpected value of type %T", val)

	case catTimestamp, catDate:
		t, ok := val.(time.Time)
		if !ok {
			s, serr := stringValue(val)
			if serr != nil {
				return nil, mappingErr("unexpected value of type %T", val)
			}
			parsed, pok := parseTimestamp(s)
			if !pok {
				return nil, mappingErr("unparsable timestamp %q", s)
			}
			t = parsed
		}
		// Zero dates (MySQL '0000-00-00') have no cross-dialect equivalent.
		if t.IsZero() {
			return nil, nil
		}
		return t, nil

	case catJSON:
		s, serr := stringValue(val)
		if serr != nil {
			return nil, mappingErr("unexpected value of type %T", val)
		}
		// MySQL JSON may contain \x00, PostgreSQL rejects it.
		s = strings.ReplaceAll(s, "\x00", "")
		if !json.Valid([]byte(s)) {
			return nil, mappingErr("invalid JSON document")
		}
		return s, nil

	case catBlob:
		switch v := val.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, mappingErr("unexpected value of type %T", val)

	default: // catText, catTime
		switch v := val.(type) {
		case []byte:
			return sanitizeText(string(v), tgt), nil
		case string:
			return sanitizeText(v, tgt), nil
		case time.Time:
			if v.IsZero() {
				return nil, nil
			}
			return v.UTC().Format(sqlTimeLayout), nil
		case bool:
			if v {
				return "1", nil
			}
			return "0", nil
		default:
			return sanitizeText(fmt.Sprintf("%v", v), tgt), nil
		}
	}
}

func coerceBool(val any, mappingErr func(string, ...any) error) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, mappingErr("value %d is not a boolean", v)
	case []byte:
		return parseBoolString(string(v), mappingErr)
	case string:
		return parseBoolString(v, mappingErr)
	}
	return false, mappingErr("unexpected value of type %T", val)
}

func parseBoolString(s string, mappingErr func(string, ...any) error) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "f":
		return false, nil
	case "1", "true", "t":
		return true, nil
	}
	return false, mappingErr("value %q is not a boolean", s)
}

func coerceInt(val any, mappingErr func(string, ...any) error) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		n := int64(v)
		if float64(n) != v {
			return 0, mappingErr("value %v is not an integer", v)
		}
		return n, nil
	case []byte:
		return parseIntValue(string(v), mappingErr)
	case string:
		return parseIntValue(v, mappingErr)
	}
	return 0, mappingErr("unexpected value of type %T", val)
}

func parseIntValue(s string, mappingErr func(string, ...any) error) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, mappingErr("value %q is not an integer", s)
	}
	return n, nil
}

func parseFloatValue(s string, mappingErr func(string, ...any) error) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, mappingErr("value %q is not a number", s)
	}
	return f, nil
}

func stringValue(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("not a string value: %T", val)
}

// sanitizeText strips NUL bytes for PostgreSQL targets, which reject them in
// text values.
func sanitizeText(s string, tgt Dialect) string {
	if tgt == DialectPostgres {
		return strings.ReplaceAll(s, "\x00", "")
	}
	return s
}

// substituteNull produces a replacement value for a NULL arriving in a
// NOT NULL target column. Text-like columns use the configured enum default
// for the column name, falling back to an empty string; the warn return is
// true for that unconfigured fallback so it can be recorded in the report.
func substituteNull(col Column, tgtType string, tgt Dialect, enumDefaults map[string]string) (val any, warn bool) {
	switch categoryOf(tgtType) {
	case catBool:
		if tgt == DialectPostgres {
			return false, false
		}
		return int64(0), false
	case catInt:
		return int64(0), false
	case catFloat:
		return float64(0), false
	case catTimestamp, catDate:
		return time.Now().UTC(), false
	case catJSON:
		return "{}", false
	case catBlob:
		return []byte{}, false
	default:
		if v, ok := enumDefaults[col.Name]; ok {
			return v, false
		}
		return "", true
	}
}

// truncateIfNeeded shortens a string value to the declared target length.
// Only called when truncate_strings is enabled.
func truncateIfNeeded(val any, maxLen int64) (any, bool) {
	s, ok := val.(string)
	if !ok || maxLen <= 0 || int64(len([]rune(s))) <= maxLen {
		return val, false
	}
	return string([]rune(s)[:maxLen]), true
}

// collectLossyTypeWarnings reports columns whose native type has no direct
// equivalent on the target and falls back to a generic text type.
func collectLossyTypeWarnings(schema *Schema, src, tgt Dialect) []string {
	if schema == nil {
		return nil
	}
	var warnings []string
	for _, t := range schema.Tables {
		for _, col := range t.Columns {
			mapped, known := mapTypeKnown(col.NativeType, src, tgt)
			if !known {
				warnings = append(warnings, fmt.Sprintf(
					"%s.%s: no %s equivalent for %q, using %s",
					t.Name, col.Name, tgt, col.NativeType, mapped))
			}
		}
	}
	return warnings
}
