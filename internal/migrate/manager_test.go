package migrate

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"fundimart.org/ops/migrations"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header; with a semicolon
create table a (id text);
insert into a values ('x;y'); -- trailing
select 1`
	stmts := splitStatements(input)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if strings.Contains(stmts[0], "header") {
		t.Fatalf("comment leaked into statement: %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "'x;y'") {
		t.Fatalf("quoted semicolon split: %q", stmts[1])
	}
	if strings.TrimSpace(stmts[2]) != "select 1" {
		t.Fatalf("unexpected tail: %q", stmts[2])
	}
}

func TestCollectSQLOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_b.up.sql":   {Data: []byte("select 2;")},
		"sql/0001_a.up.sql":   {Data: []byte("select 1;")},
		"sql/0001_a.down.sql": {Data: []byte("select 0;")},
	}
	files, err := collectSQL(fsys, "sql", ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Base != "0001_a.up.sql" || files[1].Path != "sql/0002_b.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}
	missing, err := collectSQL(fsys, "seeds", ".sql")
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing dir should be empty, got %v %v", missing, err)
	}
}

func TestUpSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"sql/0001_a.up.sql": {Data: []byte("create table a (id text);")},
		"sql/0002_b.up.sql": {Data: []byte("create table b (id text);")},
	}

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := NewManager(db, fsys, "sql", "seeds").Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	ups, err := collectSQL(migrations.FS, "sql", ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up.Path, ".up.sql") + ".down.sql"
		if _, err := migrations.FS.Open(down); err != nil {
			t.Fatalf("missing down migration for %s", up.Base)
		}
	}
}
