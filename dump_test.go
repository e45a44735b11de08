package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.sql")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const mysqlDump = `-- MySQL dump 10.13
SET NAMES utf8mb4;
/*!40101 SET @saved_cs_client = @@character_set_client */;

DROP TABLE IF EXISTS ` + "`users`" + `;
CREATE TABLE ` + "`users`" + ` (
  ` + "`id`" + ` bigint NOT NULL AUTO_INCREMENT,
  ` + "`name`" + ` varchar(100) NOT NULL,
  ` + "`status`" + ` varchar(20) DEFAULT 'active',
  ` + "`bio`" + ` text,
  PRIMARY KEY (` + "`id`" + `)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

LOCK TABLES ` + "`users`" + ` WRITE;
INSERT INTO ` + "`users`" + ` VALUES (1,'Alice','active','it''s me'),(2,'Bob',NULL,'line1\nline2');
INSERT INTO ` + "`users`" + ` (` + "`id`" + `,` + "`name`" + `) VALUES (3,'Cara; the third');
UNLOCK TABLES;

CREATE TABLE ` + "`logs`" + ` (
  ` + "`id`" + ` bigint NOT NULL AUTO_INCREMENT,
  ` + "`user_id`" + ` bigint NOT NULL,
  ` + "`message`" + ` text,
  PRIMARY KEY (` + "`id`" + `),
  CONSTRAINT ` + "`fk_logs_user`" + ` FOREIGN KEY (` + "`user_id`" + `) REFERENCES ` + "`users`" + ` (` + "`id`" + `)
) ENGINE=InnoDB;
`

func TestDumpReaderMySQLSchema(t *testing.T) {
	path := writeDump(t, mysqlDump)
	r, err := newDumpReader(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.SourceDialect() != DialectMySQL {
		t.Errorf("detected dialect %s, want mysql", r.SourceDialect())
	}
	if len(r.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings())
	}

	schema, err := r.ReadSchema(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(schema.Tables))
	}

	users := schema.Table("users")
	if users == nil {
		t.Fatal("users table missing")
	}
	if got := len(users.Columns); got != 4 {
		t.Fatalf("users has %d columns, want 4: %+v", got, users.Columns)
	}
	id := users.Column("id")
	if id == nil || !id.AutoIncrement || id.Nullable {
		t.Errorf("id column = %+v, want auto-increment NOT NULL", id)
	}
	if got := users.Column("name"); got == nil || got.NativeType != "varchar(100)" || got.Nullable {
		t.Errorf("name column = %+v", got)
	}
	status := users.Column("status")
	if status == nil || status.Default == nil || *status.Default != "'active'" {
		t.Errorf("status column = %+v, want default 'active'", status)
	}
	if bio := users.Column("bio"); bio == nil || !bio.Nullable {
		t.Errorf("bio column = %+v, want nullable", bio)
	}
	if len(users.PrimaryKey) != 1 || users.PrimaryKey[0] != "id" {
		t.Errorf("users primary key = %v", users.PrimaryKey)
	}

	logs := schema.Table("logs")
	if logs == nil || len(logs.ForeignKeys) != 1 {
		t.Fatalf("logs foreign keys = %+v", logs)
	}
	fk := logs.ForeignKeys[0]
	if fk.Column != "user_id" || fk.RefTable != "users" || fk.RefColumn != "id" {
		t.Errorf("foreign key = %+v", fk)
	}
}

func TestDumpReaderMySQLRows(t *testing.T) {
	path := writeDump(t, mysqlDump)
	r, err := newDumpReader(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx := context.Background()
	if n, _ := r.CountRows(ctx, "users"); n != 3 {
		t.Errorf("CountRows(users) = %d, want 3", n)
	}
	if n, _ := r.CountRows(ctx, "logs"); n != 0 {
		t.Errorf("CountRows(logs) = %d, want 0", n)
	}

	schema, _ := r.ReadSchema(ctx)
	users := schema.Table("users")

	var rows [][]any
	err = r.StreamRows(ctx, users, func(row []any) error {
		copied := make([]any, len(row))
		copy(copied, row)
		rows = append(rows, copied)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("streamed %d rows, want 3: %v", len(rows), rows)
	}

	if rows[0][0] != int64(1) || rows[0][1] != "Alice" || rows[0][3] != "it's me" {
		t.Errorf("row 1 = %v", rows[0])
	}
	if rows[1][2] != nil {
		t.Errorf("row 2 status = %v, want nil", rows[1][2])
	}
	if rows[1][3] != "line1\nline2" {
		t.Errorf("row 2 bio = %q, escape not applied", rows[1][3])
	}
	// Partial column list: unnamed columns arrive as NULL.
	if rows[2][0] != int64(3) || rows[2][1] != "Cara; the third" || rows[2][2] != nil {
		t.Errorf("row 3 = %v", rows[2])
	}
}

const postgresDump = `--
-- PostgreSQL database dump
--

SET search_path = public;

CREATE TABLE users (
    id bigint NOT NULL,
    email character varying(150) NOT NULL,
    score numeric(10,2)
);

ALTER TABLE ONLY users ADD CONSTRAINT users_pkey PRIMARY KEY (id);

COPY users (id, email, score) FROM stdin;
1	a@example.com	9.50
2	b@example.com	\N
\.

INSERT INTO users (id, email) VALUES (3, 'c@example.com');
`

func TestDumpReaderPostgresCopy(t *testing.T) {
	path := writeDump(t, postgresDump)
	r, err := newDumpReader(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.SourceDialect() != DialectPostgres {
		t.Errorf("detected dialect %s, want postgres", r.SourceDialect())
	}

	ctx := context.Background()
	if n, _ := r.CountRows(ctx, "users"); n != 3 {
		t.Errorf("CountRows = %d, want 3", n)
	}

	schema, _ := r.ReadSchema(ctx)
	users := schema.Table("users")
	if users == nil || len(users.Columns) != 3 {
		t.Fatalf("users = %+v", users)
	}
	if email := users.Column("email"); email == nil || email.NativeType != "character varying(150)" {
		t.Errorf("email column = %+v", email)
	}

	var rows [][]any
	err = r.StreamRows(ctx, users, func(row []any) error {
		copied := make([]any, len(row))
		copy(copied, row)
		rows = append(rows, copied)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("streamed %d rows, want 3", len(rows))
	}
	if rows[0][1] != "a@example.com" || rows[0][2] != "9.50" {
		t.Errorf("copy row 1 = %v", rows[0])
	}
	if rows[1][2] != nil {
		t.Errorf("copy row 2 score = %v, want nil", rows[1][2])
	}
	if rows[2][0] != int64(3) || rows[2][2] != nil {
		t.Errorf("insert row = %v", rows[2])
	}
}

func TestDumpReaderSQLiteDetection(t *testing.T) {
	dump := `PRAGMA foreign_keys=OFF;
BEGIN TRANSACTION;
CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT);
INSERT INTO items VALUES(1,'first');
COMMIT;
`
	r, err := newDumpReader(writeDump(t, dump), "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.SourceDialect() != DialectSQLite {
		t.Errorf("detected dialect %s, want sqlite", r.SourceDialect())
	}
	schema, _ := r.ReadSchema(context.Background())
	id := schema.Table("items").Column("id")
	if id == nil || !id.AutoIncrement {
		t.Errorf("id column = %+v, want auto-increment", id)
	}
}

func TestDumpReaderExplicitDialectWins(t *testing.T) {
	dump := "CREATE TABLE t (id bigint AUTO_INCREMENT, PRIMARY KEY (id));\n"
	r, err := newDumpReader(writeDump(t, dump), DialectMySQL)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.SourceDialect() != DialectMySQL {
		t.Errorf("explicit dialect overridden: %s", r.SourceDialect())
	}
}

func TestDumpReaderMalformedStatement(t *testing.T) {
	dump := `CREATE TABLE t (id bigint NOT NULL);
INSERT INTO t VALUES (1),(2);
THIS IS NOT SQL AT ALL;
INSERT INTO t VALUES (3;
`
	r, err := newDumpReader(writeDump(t, dump), DialectMySQL)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if len(r.Warnings()) != 2 {
		t.Fatalf("got warnings %v, want 2", r.Warnings())
	}
	for _, w := range r.Warnings() {
		if !strings.Contains(w, "line") {
			t.Errorf("warning %q has no line number", w)
		}
	}
	if n, _ := r.CountRows(context.Background(), "t"); n != 2 {
		t.Errorf("CountRows = %d, want the 2 parsable rows", n)
	}
}

func TestDumpReaderConcurrentStreams(t *testing.T) {
	dump := `CREATE TABLE alpha (id bigint NOT NULL);
CREATE TABLE beta (id bigint NOT NULL);
INSERT INTO alpha VALUES (1),(2);
INSERT INTO beta VALUES (3),(4);
INSERT INTO alpha VALUES (5), garbage;
INSERT INTO beta VALUES (6), garbage;
`
	r, err := newDumpReader(writeDump(t, dump), DialectMySQL)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	before := len(r.Warnings())

	schema, _ := r.ReadSchema(context.Background())
	var wg sync.WaitGroup
	for _, name := range []string{"alpha", "beta"} {
		tbl := schema.Table(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.StreamRows(context.Background(), tbl, func([]any) error { return nil })
		}()
	}
	wg.Wait()

	// Each stream hits its own malformed trailing tuple while the other
	// stream is running.
	if got := len(r.Warnings()); got != before+2 {
		t.Errorf("warnings after concurrent streams = %d, want %d", got, before+2)
	}
}

func TestDumpReaderMissingFile(t *testing.T) {
	_, err := newDumpReader(filepath.Join(t.TempDir(), "nope.sql"), "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %T", err)
	}
}

func TestSQLScannerQuoting(t *testing.T) {
	input := `INSERT INTO t VALUES ('semi; colon', "quo;ted");
-- a comment; with semicolon
INSERT INTO t VALUES ('escaped \' quote');`
	sc := newSQLScanner(strings.NewReader(input))

	stmt, line, err := sc.next()
	if err != nil || line != 1 || !strings.Contains(stmt, "semi; colon") {
		t.Fatalf("first statement = (%q, %d, %v)", stmt, line, err)
	}
	stmt, line, err = sc.next()
	if err != nil || !strings.Contains(stmt, `\' quote`) {
		t.Fatalf("second statement = (%q, %d, %v)", stmt, line, err)
	}
	if line != 3 {
		t.Errorf("second statement starts at line %d, want 3", line)
	}
}

func TestParseCreateTableInlineReferences(t *testing.T) {
	stmt := `CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		user_id integer NOT NULL REFERENCES users(id),
		total numeric(10,2) DEFAULT 0
	)`
	tbl, perr := parseCreateTable(stmt, 1)
	if perr != nil {
		t.Fatal(perr)
	}
	if !tbl.Column("id").AutoIncrement {
		t.Error("serial column should be auto-increment")
	}
	if len(tbl.ForeignKeys) != 1 || tbl.ForeignKeys[0].RefTable != "users" {
		t.Errorf("foreign keys = %+v", tbl.ForeignKeys)
	}
	if tot := tbl.Column("total"); tot.Default == nil || *tot.Default != "0" {
		t.Errorf("total default = %+v", tot.Default)
	}
}
