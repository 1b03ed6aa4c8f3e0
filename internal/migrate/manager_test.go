package migrate

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var testFS = fstest.MapFS{
	"0001_a.up.sql":   {Data: []byte("create table a (id int);\n")},
	"0001_a.down.sql": {Data: []byte("drop table a;\n")},
	"0002_b.up.sql":   {Data: []byte("-- b isn't special\ncreate table b (x text default 'a;b');\n")},
	"0002_b.down.sql": {Data: []byte("drop table b;\n")},
	"README.md":       {Data: []byte("not sql")},
}

func newMock(t *testing.T, seeds fstest.MapFS) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seedFS fs.FS
	if seeds != nil {
		seedFS = seeds
	}
	return NewManager(db, testFS, seedFS, WithLogger(quiet)), mock
}

func expectTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table if not exists schema_seeds`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesOnlyPending(t *testing.T) {
	m, mock := newMock(t, nil)

	expectTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`create table b (x text default 'a;b');`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_b.up.sql" {
		t.Fatalf("unexpected applied list: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpRollsBackFailedFile(t *testing.T) {
	m, mock := newMock(t, nil)

	expectTables(mock)
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`create table a (id int);`)).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := m.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_a.up.sql") {
		t.Fatalf("expected error naming the migration, got %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected nothing applied, got %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRevertsLatest(t *testing.T) {
	m, mock := newMock(t, nil)
	now := time.Now()

	expectTables(mock)
	mock.ExpectQuery(`select name, applied_at from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).
			AddRow("0001_a.up.sql", now.Add(-time.Minute)).
			AddRow("0002_b.up.sql", now))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`drop table b;`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from schema_migrations`).
		WithArgs("0002_b.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := m.Down(context.Background())
	if err != nil {
		t.Fatalf("down: %v", err)
	}
	if name != "0002_b.up.sql" {
		t.Fatalf("unexpected rolled back migration: %s", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	m, mock := newMock(t, nil)

	expectTables(mock)
	mock.ExpectQuery(`select name, applied_at from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))

	if _, err := m.Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestStatusReportsPending(t *testing.T) {
	m, mock := newMock(t, nil)

	expectTables(mock)
	mock.ExpectQuery(`select name, applied_at from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("0001_a.up.sql", time.Now()))

	applied, pending, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(applied) != 1 || applied[0].Name != "0001_a.up.sql" {
		t.Fatalf("unexpected applied: %+v", applied)
	}
	if len(pending) != 1 || pending[0] != "0002_b.up.sql" {
		t.Fatalf("unexpected pending: %v", pending)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	seeds := fstest.MapFS{
		"0001_contract.sql": {Data: []byte("insert into contract_state (id) values (1) on conflict (id) do nothing;")},
	}
	m, mock := newMock(t, seeds)

	expectTables(mock)
	mock.ExpectQuery(`select name from schema_seeds`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_contract.sql"))

	applied, err := m.Seed(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no seeds re-applied, got %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	sql := "-- don't split here; please\ncreate table a (id int);\ninsert into a values ('x;y');\n\n"
	stmts := splitStatements(sql)
	var nonEmpty []string
	for _, s := range stmts {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(s))
		}
	}
	if len(nonEmpty) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(nonEmpty), nonEmpty)
	}
	if nonEmpty[0] != "create table a (id int);" {
		t.Fatalf("unexpected first statement: %q", nonEmpty[0])
	}
	if nonEmpty[1] != "insert into a values ('x;y');" {
		t.Fatalf("unexpected second statement: %q", nonEmpty[1])
	}
}

func TestCollectSQLFiltersAndSorts(t *testing.T) {
	files, err := collectSQL(testFS, ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_a.up.sql" || files[1] != "0002_b.up.sql" {
		t.Fatalf("unexpected files: %v", files)
	}
}
