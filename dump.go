package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// dumpReader turns an offline SQL dump into the same schema and row stream a
// live connection yields. Construction scans the file once for CREATE TABLE
// statements, row counts and dialect markers; row streaming re-scans the file
// per table, so no dump is ever held in memory whole.
type dumpReader struct {
	path    string
	dialect Dialect
	schema  *Schema
	counts  map[string]int64

	mu       sync.Mutex // StreamRows runs concurrently for independent tables
	warnings []string
}

func (d *dumpReader) Name() string           { return "dump file" }
func (d *dumpReader) SourceDialect() Dialect { return d.dialect }
func (d *dumpReader) Close() error           { return nil }

func (d *dumpReader) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.warnings...)
}

func (d *dumpReader) addWarning(msg string) {
	d.mu.Lock()
	d.warnings = append(d.warnings, msg)
	d.mu.Unlock()
}

func newDumpReader(path string, explicit Dialect) (*dumpReader, error) {
	d := &dumpReader{
		path:    path,
		dialect: explicit,
		schema:  &Schema{},
		counts:  make(map[string]int64),
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ConnectionError{Endpoint: "source", Err: err}
	}
	defer f.Close()

	var markers dialectMarkers
	sc := newSQLScanner(f)
	for {
		stmt, line, err := sc.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dump: %w", err)
		}
		markers.observe(stmt)

		switch classifyStatement(stmt) {
		case stmtCreateTable:
			t, perr := parseCreateTable(stmt, line)
			if perr != nil {
				d.addWarning(perr.Error())
				continue
			}
			if d.schema.Table(t.Name) == nil {
				d.schema.Tables = append(d.schema.Tables, *t)
			}
		case stmtInsert:
			table, cols, values, perr := parseInsertHeader(stmt, line)
			if perr != nil {
				d.addWarning(perr.Error())
				continue
			}
			n, perr := countValueTuples(values, line)
			if perr != nil {
				d.addWarning(perr.Error())
				continue
			}
			d.counts[table] += n
			d.ensureTable(table, cols)
		case stmtCopy:
			table, cols, perr := parseCopyHeader(stmt, line)
			if perr != nil {
				d.addWarning(perr.Error())
				sc.skipCopyData()
				continue
			}
			n, err := sc.skipCopyData()
			if err != nil {
				return nil, fmt.Errorf("read dump: %w", err)
			}
			d.counts[table] += n
			d.ensureTable(table, cols)
		case stmtIgnored:
			// SET, LOCK TABLES, BEGIN/COMMIT, DROP, ALTER, PRAGMA, ...
		default:
			d.addWarning((&ParseError{
				Line: line, Stmt: stmt, Msg: "unrecognized statement, skipped",
			}).Error())
		}
	}

	if d.dialect == "" {
		d.dialect = markers.detect()
		if d.dialect == "" {
			d.dialect = DialectMySQL
			d.addWarning("could not detect dump dialect from content, assuming mysql (set source.type to override)")
		}
	}
	return d, nil
}

// ensureTable registers a table seen only through INSERT/COPY statements.
// Without a CREATE TABLE its columns default to nullable text.
func (d *dumpReader) ensureTable(name string, cols []string) {
	t := d.schema.Table(name)
	if t != nil {
		return
	}
	nt := Table{Name: name}
	for i, c := range cols {
		nt.Columns = append(nt.Columns, Column{
			Name: c, NativeType: "text", Nullable: true, OrdinalPos: i + 1,
		})
	}
	d.schema.Tables = append(d.schema.Tables, nt)
}

func (d *dumpReader) ReadSchema(ctx context.Context) (*Schema, error) {
	return d.schema, nil
}

func (d *dumpReader) CountRows(ctx context.Context, table string) (int64, error) {
	if n, ok := d.counts[table]; ok {
		return n, nil
	}
	return 0, nil
}

// StreamRows re-scans the dump and yields rows for one table, padded or
// reordered into the table's column order.
func (d *dumpReader) StreamRows(ctx context.Context, table *Table, fn func(row []any) error) error {
	f, err := os.Open(d.path)
	if err != nil {
		return &ConnectionError{Endpoint: "source", Err: err}
	}
	defer f.Close()

	sc := newSQLScanner(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stmt, line, err := sc.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read dump: %w", err)
		}

		switch classifyStatement(stmt) {
		case stmtInsert:
			name, cols, values, perr := parseInsertHeader(stmt, line)
			if perr != nil || name != table.Name {
				continue // already recorded as a warning during the first scan
			}
			err := forEachValueTuple(values, line, func(vals []any) error {
				return fn(alignRow(vals, cols, table))
			})
			if err != nil {
				if perr, ok := err.(*ParseError); ok {
					// Statement-local damage: skip it, surface it.
					d.addWarning(perr.Error())
					continue
				}
				return err
			}
		case stmtCopy:
			name, cols, perr := parseCopyHeader(stmt, line)
			if perr != nil || name != table.Name {
				sc.skipCopyData()
				continue
			}
			if err := sc.eachCopyRow(func(vals []any) error {
				return fn(alignRow(vals, cols, table))
			}); err != nil {
				return err
			}
		}
	}
}

func (d *dumpReader) SourceObjects(ctx context.Context) (*SourceObjects, error) {
	return nil, nil
}

// alignRow maps parsed values into the table's column order. Rows shorter
// than the column list are padded with NULL, longer rows truncated.
func alignRow(vals []any, insertCols []string, table *Table) []any {
	out := make([]any, len(table.Columns))
	if len(insertCols) == 0 {
		copy(out, vals)
		return out
	}
	for i, c := range insertCols {
		if i >= len(vals) {
			break
		}
		for j := range table.Columns {
			if table.Columns[j].Name == c {
				out[j] = vals[i]
				break
			}
		}
	}
	return out
}

// --- dialect detection ---

type dialectMarkers struct {
	autoIncrement bool // AUTO_INCREMENT, ENGINE= (MySQL)
	autoincrement bool // AUTOINCREMENT, PRAGMA (SQLite)
	serial        bool // SERIAL, COPY FROM stdin, :: casts (PostgreSQL)
}

func (m *dialectMarkers) observe(stmt string) {
	upper := strings.ToUpper(stmt)
	if strings.Contains(upper, "AUTO_INCREMENT") || strings.Contains(upper, "ENGINE=") {
		m.autoIncrement = true
	}
	if strings.Contains(upper, "AUTOINCREMENT") || strings.HasPrefix(upper, "PRAGMA") {
		m.autoincrement = true
	}
	if strings.Contains(upper, "SERIAL") || strings.HasPrefix(upper, "COPY ") ||
		strings.Contains(upper, "SET SEARCH_PATH") {
		m.serial = true
	}
}

// detect is best effort: explicit source.type in the request always wins.
func (m *dialectMarkers) detect() Dialect {
	switch {
	case m.autoIncrement:
		return DialectMySQL
	case m.serial:
		return DialectPostgres
	case m.autoincrement:
		return DialectSQLite
	default:
		return ""
	}
}

// --- statement classification ---

type stmtKind int

const (
	stmtUnknown stmtKind = iota
	stmtCreateTable
	stmtInsert
	stmtCopy
	stmtIgnored
)

var ignoredStatementPrefixes = []string{
	"SET ", "LOCK ", "UNLOCK ", "BEGIN", "COMMIT", "START TRANSACTION",
	"PRAGMA ", "DROP ", "ALTER ", "USE ", "DELIMITER", "ANALYZE", "VACUUM",
	"GRANT ", "REVOKE ", "COMMENT ", "SELECT ",
}

func classifyStatement(stmt string) stmtKind {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	switch {
	case upper == "":
		return stmtIgnored
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return stmtCreateTable
	case strings.HasPrefix(upper, "CREATE "):
		return stmtIgnored // indexes, views, sequences: not part of the run
	case strings.HasPrefix(upper, "INSERT "):
		return stmtInsert
	case strings.HasPrefix(upper, "COPY ") && strings.Contains(upper, "FROM STDIN"):
		return stmtCopy
	}
	for _, p := range ignoredStatementPrefixes {
		if strings.HasPrefix(upper, p) || upper == strings.TrimSpace(p) {
			return stmtIgnored
		}
	}
	return stmtUnknown
}

// --- statement scanner ---

// sqlScanner splits SQL text into semicolon-terminated statements, ignoring
// semicolons inside quoted strings and comments, without reading the whole
// input at once. PostgreSQL COPY data blocks are consumed separately via
// eachCopyRow/skipCopyData.
type sqlScanner struct {
	br   *bufio.Reader
	line int
}

func newSQLScanner(r io.Reader) *sqlScanner {
	return &sqlScanner{br: bufio.NewReaderSize(r, 64*1024), line: 1}
}

func (s *sqlScanner) next() (stmt string, startLine int, err error) {
	var b strings.Builder
	var quote byte // active quote char: ' " `
	escaped := false
	startLine = s.line

	for {
		c, err := s.br.ReadByte()
		if err == io.EOF {
			if strings.TrimSpace(b.String()) != "" {
				return b.String(), startLine, nil
			}
			return "", 0, io.EOF
		}
		if err != nil {
			return "", 0, err
		}
		if c == '\n' {
			s.line++
		}

		if quote != 0 {
			b.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' && quote == '\'' {
				escaped = true
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
			b.WriteByte(c)
		case '-':
			// Possible line comment.
			if peek, _ := s.br.Peek(1); len(peek) == 1 && peek[0] == '-' {
				s.skipToEOL()
				if strings.TrimSpace(b.String()) == "" {
					startLine = s.line
				}
				continue
			}
			b.WriteByte(c)
		case '/':
			// Possible block comment (including MySQL /*! ... */ hints).
			if peek, _ := s.br.Peek(1); len(peek) == 1 && peek[0] == '*' {
				if err := s.skipBlockComment(); err != nil {
					return "", 0, err
				}
				if strings.TrimSpace(b.String()) == "" {
					startLine = s.line
				}
				continue
			}
			b.WriteByte(c)
		case ';':
			out := strings.TrimSpace(b.String())
			if out == "" {
				b.Reset()
				startLine = s.line
				continue
			}
			return out, startLine, nil
		default:
			if b.Len() == 0 && (c == ' ' || c == '\t' || c == '\n' || c == '\r') {
				startLine = s.line
				continue
			}
			b.WriteByte(c)
		}
	}
}

func (s *sqlScanner) skipToEOL() {
	for {
		c, err := s.br.ReadByte()
		if err != nil {
			return
		}
		if c == '\n' {
			s.line++
			return
		}
	}
}

func (s *sqlScanner) skipBlockComment() error {
	// The leading '*' is still unread.
	s.br.ReadByte()
	prev := byte(0)
	for {
		c, err := s.br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if c == '\n' {
			s.line++
		}
		if prev == '*' && c == '/' {
			return nil
		}
		prev = c
	}
}

// rawLine reads one raw line of COPY data. done is true at the `\.`
// terminator or EOF.
func (s *sqlScanner) rawLine() (line string, done bool, err error) {
	var b strings.Builder
	for {
		c, rerr := s.br.ReadByte()
		if rerr == io.EOF {
			if b.Len() == 0 {
				return "", true, nil
			}
			break
		}
		if rerr != nil {
			return "", false, rerr
		}
		if c == '\n' {
			s.line++
			break
		}
		b.WriteByte(c)
	}
	line = strings.TrimSuffix(b.String(), "\r")
	if line == `\.` {
		return "", true, nil
	}
	return line, false, nil
}

func (s *sqlScanner) eachCopyRow(fn func(vals []any) error) error {
	for {
		line, done, err := s.rawLine()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if line == "" {
			continue
		}
		if err := fn(parseCopyRow(line)); err != nil {
			return err
		}
	}
}

func (s *sqlScanner) skipCopyData() (int64, error) {
	var n int64
	for {
		line, done, err := s.rawLine()
		if err != nil {
			return n, err
		}
		if done {
			return n, nil
		}
		if line != "" {
			n++
		}
	}
}

// --- CREATE TABLE parsing ---

var createTableConstraintKeywords = map[string]bool{
	"primary": true, "unique": true, "key": true, "index": true,
	"constraint": true, "foreign": true, "check": true, "fulltext": true,
	"spatial": true, "exclude": true,
}

func parseCreateTable(stmt string, line int) (*Table, *ParseError) {
	rest, ok := consumeKeywords(stmt, "create", "table")
	if !ok {
		return nil, &ParseError{Line: line, Stmt: stmt, Msg: "malformed CREATE TABLE"}
	}
	if r, ok := consumeKeywords(rest, "if", "not", "exists"); ok {
		rest = r
	}

	name, rest, ok := readIdentifier(rest)
	if !ok {
		return nil, &ParseError{Line: line, Stmt: stmt, Msg: "missing table name"}
	}

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return nil, &ParseError{Line: line, Stmt: stmt, Msg: "missing column list"}
	}
	closeIdx := matchParen(rest, open)
	if closeIdx < 0 {
		return nil, &ParseError{Line: line, Stmt: stmt, Msg: "unbalanced parentheses"}
	}
	body := rest[open+1 : closeIdx]

	t := &Table{Name: name}
	for i, def := range splitTopLevel(body) {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		if perr := parseTableDefinition(t, def, i); perr != nil {
			return nil, &ParseError{Line: line, Stmt: stmt, Msg: perr.Error()}
		}
	}
	if len(t.Columns) == 0 {
		return nil, &ParseError{Line: line, Stmt: stmt, Msg: "no columns parsed"}
	}
	return t, nil
}

func parseTableDefinition(t *Table, def string, ordinal int) error {
	first, _, _ := readIdentifier(def)
	lower := strings.ToLower(first)

	if createTableConstraintKeywords[lower] {
		return parseTableConstraint(t, def)
	}
	return parseColumnDefinition(t, def, ordinal)
}

func parseTableConstraint(t *Table, def string) error {
	def = strings.TrimSpace(def)
	upper := strings.ToUpper(def)

	if rest, ok := consumeKeywords(def, "constraint"); ok {
		// Named constraint: skip the name, re-dispatch.
		if _, r, ok := readIdentifier(rest); ok {
			return parseTableConstraint(t, r)
		}
		return nil
	}

	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY"):
		cols, ok := parenIdentList(def)
		if !ok {
			return fmt.Errorf("malformed PRIMARY KEY constraint")
		}
		t.PrimaryKey = cols
	case strings.HasPrefix(upper, "FOREIGN KEY"):
		cols, ok := parenIdentList(def)
		if !ok {
			return fmt.Errorf("malformed FOREIGN KEY constraint")
		}
		refIdx := strings.Index(upper, "REFERENCES")
		if refIdx < 0 {
			return fmt.Errorf("FOREIGN KEY without REFERENCES")
		}
		refTable, refCols, err := parseReferences(def[refIdx:])
		if err != nil {
			return err
		}
		for i, c := range cols {
			fk := ForeignKey{Column: c, RefTable: refTable}
			if i < len(refCols) {
				fk.RefColumn = refCols[i]
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}
	// UNIQUE/KEY/INDEX/CHECK/FULLTEXT constraints carry no schema the
	// migration needs.
	return nil
}

func parseColumnDefinition(t *Table, def string, ordinal int) error {
	name, rest, ok := readIdentifier(def)
	if !ok {
		return fmt.Errorf("malformed column definition %q", def)
	}

	typ, rest, ok := readTypeName(rest)
	if !ok {
		return fmt.Errorf("column %s: missing type", name)
	}

	col := Column{
		Name:       name,
		NativeType: strings.ToLower(typ),
		Nullable:   true,
		OrdinalPos: ordinal + 1,
	}
	if _, p1, _ := splitNativeType(col.NativeType); p1 > 0 {
		col.MaxLength = p1
	}

	upper := strings.ToUpper(rest)
	if strings.Contains(upper, "NOT NULL") {
		col.Nullable = false
	}
	if strings.Contains(upper, "AUTO_INCREMENT") || strings.Contains(upper, "AUTOINCREMENT") {
		col.AutoIncrement = true
	}
	base, _, _ := splitNativeType(col.NativeType)
	if base == "serial" || base == "bigserial" {
		col.AutoIncrement = true
		col.Nullable = false
	}
	if strings.Contains(upper, "PRIMARY KEY") {
		t.PrimaryKey = append(t.PrimaryKey, name)
		col.Nullable = false
		// SQLite INTEGER PRIMARY KEY is a rowid alias.
		if base == "integer" || base == "int" {
			col.AutoIncrement = true
		}
	}
	if idx := strings.Index(upper, "DEFAULT"); idx >= 0 {
		if v, ok := readDefaultValue(rest[idx+len("DEFAULT"):]); ok {
			col.Default = &v
		}
	}
	if idx := strings.Index(upper, "REFERENCES"); idx >= 0 {
		refTable, refCols, err := parseReferences(rest[idx:])
		if err == nil {
			fk := ForeignKey{Column: name, RefTable: refTable}
			if len(refCols) > 0 {
				fk.RefColumn = refCols[0]
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}

	t.Columns = append(t.Columns, col)
	return nil
}

// parseReferences parses "REFERENCES tbl (col, ...)" and returns the target.
func parseReferences(s string) (table string, cols []string, err error) {
	rest, ok := consumeKeywords(s, "references")
	if !ok {
		return "", nil, fmt.Errorf("malformed REFERENCES clause")
	}
	table, rest, ok = readIdentifier(rest)
	if !ok {
		return "", nil, fmt.Errorf("REFERENCES without table name")
	}
	if cols, ok = parenIdentList(rest); !ok {
		cols = nil // referencing the primary key implicitly
	}
	return table, cols, nil
}

// readDefaultValue extracts the literal following DEFAULT: a quoted string,
// number, bare word or parenthesized expression.
func readDefaultValue(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	switch s[0] {
	case '\'', '"':
		end := findClosingQuote(s, 0)
		if end < 0 {
			return "", false
		}
		return s[:end+1], true
	case '(':
		end := matchParen(s, 0)
		if end < 0 {
			return "", false
		}
		return s[:end+1], true
	}
	// Bare token, possibly with call parens: CURRENT_TIMESTAMP(6)
	end := 0
	for end < len(s) && s[end] != ' ' && s[end] != '\t' && s[end] != ',' && s[end] != '(' {
		end++
	}
	if end < len(s) && s[end] == '(' {
		if close := matchParen(s, end); close > 0 {
			end = close + 1
		}
	}
	return s[:end], true
}

// --- INSERT parsing ---

func parseInsertHeader(stmt string, line int) (table string, cols []string, values string, perr *ParseError) {
	rest, ok := consumeKeywords(stmt, "insert")
	if !ok {
		return "", nil, "", &ParseError{Line: line, Stmt: stmt, Msg: "malformed INSERT"}
	}
	if r, ok := consumeKeywords(rest, "ignore"); ok {
		rest = r
	}
	if r, ok := consumeKeywords(rest, "into"); ok {
		rest = r
	}

	table, rest, ok = readIdentifier(rest)
	if !ok {
		return "", nil, "", &ParseError{Line: line, Stmt: stmt, Msg: "INSERT without table name"}
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") {
		end := matchParen(rest, 0)
		if end < 0 {
			return "", nil, "", &ParseError{Line: line, Stmt: stmt, Msg: "unbalanced column list"}
		}
		cols = splitIdentList(rest[1:end])
		rest = rest[end+1:]
	}

	rest2, ok := consumeKeywords(rest, "values")
	if !ok {
		return "", nil, "", &ParseError{Line: line, Stmt: stmt, Msg: "INSERT without VALUES"}
	}
	return table, cols, rest2, nil
}

func countValueTuples(values string, line int) (int64, *ParseError) {
	var n int64
	perr := forEachValueTuple(values, line, func([]any) error {
		n++
		return nil
	})
	if perr != nil {
		if pe, ok := perr.(*ParseError); ok {
			return 0, pe
		}
		return 0, &ParseError{Line: line, Stmt: values, Msg: perr.Error()}
	}
	return n, nil
}

// forEachValueTuple walks a multi-row VALUES list: (a,b),(c,d),...
func forEachValueTuple(values string, line int, fn func(vals []any) error) error {
	i := 0
	for i < len(values) {
		for i < len(values) && (values[i] == ' ' || values[i] == '\n' || values[i] == '\r' ||
			values[i] == '\t' || values[i] == ',') {
			i++
		}
		if i >= len(values) {
			break
		}
		if values[i] != '(' {
			return &ParseError{Line: line, Stmt: values[i:], Msg: "expected value tuple"}
		}
		end := matchParen(values, i)
		if end < 0 {
			return &ParseError{Line: line, Stmt: values[i:], Msg: "unbalanced value tuple"}
		}
		vals, err := parseRowValues(values[i+1 : end])
		if err != nil {
			return &ParseError{Line: line, Stmt: values[i : end+1], Msg: err.Error()}
		}
		if err := fn(vals); err != nil {
			return err
		}
		i = end + 1
	}
	return nil
}

// parseRowValues splits one tuple body on top-level commas and converts each
// literal.
func parseRowValues(row string) ([]any, error) {
	var vals []any
	for _, part := range splitTopLevel(row) {
		v, err := convertLiteral(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// convertLiteral turns one SQL literal into a Go value: nil, bool, int64,
// float64 or string.
func convertLiteral(val string) (any, error) {
	if val == "" {
		return nil, fmt.Errorf("empty value")
	}
	upper := strings.ToUpper(val)
	if upper == "NULL" {
		return nil, nil
	}
	if upper == "TRUE" {
		return true, nil
	}
	if upper == "FALSE" {
		return false, nil
	}
	if val[0] == '\'' || val[0] == '"' {
		end := findClosingQuote(val, 0)
		if end != len(val)-1 {
			return nil, fmt.Errorf("unterminated string literal %q", val)
		}
		return unescapeSQLString(val[1:end], val[0]), nil
	}
	if strings.HasPrefix(upper, "X'") || strings.HasPrefix(upper, "0X") {
		return val, nil // hex blob literal, passed through as text
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f, nil
	}
	return val, nil // bare keyword like CURRENT_TIMESTAMP
}

func unescapeSQLString(s string, quote byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		if c == quote && i+1 < len(s) && s[i+1] == quote {
			b.WriteByte(quote)
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// --- COPY parsing ---

func parseCopyHeader(stmt string, line int) (table string, cols []string, perr *ParseError) {
	rest, ok := consumeKeywords(stmt, "copy")
	if !ok {
		return "", nil, &ParseError{Line: line, Stmt: stmt, Msg: "malformed COPY"}
	}
	table, rest, ok = readIdentifier(rest)
	if !ok {
		return "", nil, &ParseError{Line: line, Stmt: stmt, Msg: "COPY without table name"}
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") {
		end := matchParen(rest, 0)
		if end < 0 {
			return "", nil, &ParseError{Line: line, Stmt: stmt, Msg: "unbalanced column list"}
		}
		cols = splitIdentList(rest[1:end])
	}
	return table, cols, nil
}

// parseCopyRow splits one tab-separated COPY data line.
func parseCopyRow(line string) []any {
	fields := strings.Split(line, "\t")
	vals := make([]any, len(fields))
	for i, f := range fields {
		if f == `\N` {
			vals[i] = nil
			continue
		}
		vals[i] = unescapeCopyField(f)
	}
	return vals
}

func unescapeCopyField(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// --- lexing helpers ---

// consumeKeywords matches leading keywords case-insensitively and returns the
// remainder.
func consumeKeywords(s string, keywords ...string) (string, bool) {
	rest := s
	for _, kw := range keywords {
		rest = strings.TrimLeft(rest, " \t\n\r")
		if len(rest) < len(kw) || !strings.EqualFold(rest[:len(kw)], kw) {
			return s, false
		}
		tail := rest[len(kw):]
		if tail != "" && !isWordBoundary(tail[0]) {
			return s, false
		}
		rest = tail
	}
	return rest, true
}

func isWordBoundary(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ';'
}

// readIdentifier reads one identifier, optionally quoted with backticks,
// double quotes or brackets, optionally schema-qualified (the qualifier is
// dropped).
func readIdentifier(s string) (name, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	if s == "" {
		return "", "", false
	}

	readOne := func(s string) (string, string, bool) {
		switch s[0] {
		case '`', '"', '\'':
			end := findClosingQuote(s, 0)
			if end < 0 {
				return "", "", false
			}
			return s[1:end], s[end+1:], true
		case '[':
			end := strings.IndexByte(s, ']')
			if end < 0 {
				return "", "", false
			}
			return s[1:end], s[end+1:], true
		default:
			end := 0
			for end < len(s) && (isIdentChar(s[end])) {
				end++
			}
			if end == 0 {
				return "", "", false
			}
			return s[:end], s[end:], true
		}
	}

	name, rest, ok = readOne(s)
	if !ok {
		return "", "", false
	}
	// Qualified name: keep the last segment.
	for strings.HasPrefix(rest, ".") {
		var next string
		next, rest, ok = readOne(rest[1:])
		if !ok {
			return "", "", false
		}
		name = next
	}
	return name, rest, true
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$'
}

// readTypeName reads a (possibly multi-word, possibly parameterized) type:
// "double precision", "varchar(255)", "int unsigned",
// "timestamp with time zone".
func readTypeName(s string) (typ, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	for end < len(s) && isIdentChar(s[end]) {
		end++
	}
	if end == 0 {
		return "", "", false
	}
	typ = s[:end]
	rest = s[end:]

	if strings.HasPrefix(rest, "(") {
		if close := matchParen(rest, 0); close > 0 {
			typ += rest[:close+1]
			rest = rest[close+1:]
		}
	}

	// Multi-word suffixes that belong to the type name, with their own
	// length parameters: "character varying(150)".
	for _, suffix := range []string{"precision", "varying", "unsigned", "with time zone", "without time zone"} {
		if r, matched := consumeKeywords(rest, strings.Fields(suffix)...); matched {
			typ += " " + suffix
			rest = r
			if strings.HasPrefix(rest, "(") {
				if close := matchParen(rest, 0); close > 0 {
					typ += rest[:close+1]
					rest = rest[close+1:]
				}
			}
			break
		}
	}
	return typ, rest, true
}

// matchParen returns the index of the ')' matching the '(' at start, skipping
// quoted strings, or -1.
func matchParen(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			end := findClosingQuote(s, i)
			if end < 0 {
				return -1
			}
			i = end
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// findClosingQuote returns the index of the quote closing the one at start,
// honoring backslash escapes and doubled quotes, or -1.
func findClosingQuote(s string, start int) int {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if c == '\\' && quote == '\'' {
			i++
			continue
		}
		if c == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

// splitTopLevel splits on commas at paren depth zero, outside quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			end := findClosingQuote(s, i)
			if end < 0 {
				i = len(s)
				continue
			}
			i = end
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// splitIdentList parses "a, `b`, \"c\"" into identifier names.
func splitIdentList(s string) []string {
	var out []string
	for _, part := range splitTopLevel(s) {
		if name, _, ok := readIdentifier(part); ok {
			out = append(out, name)
		}
	}
	return out
}

// parenIdentList finds the first parenthesized group in s and parses it as an
// identifier list.
func parenIdentList(s string) ([]string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return nil, false
	}
	closeIdx := matchParen(s, open)
	if closeIdx < 0 {
		return nil, false
	}
	return splitIdentList(s[open+1 : closeIdx]), true
}
