package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

var testMigrations = fstest.MapFS{
	"migrations/1_notes.up.sql":   {Data: []byte(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);`)},
	"migrations/1_notes.down.sql": {Data: []byte(`DROP TABLE notes;`)},
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDSN(t *testing.T) {
	got := dsn(Config{Path: "/data/newsdesk.db", BusyTimeout: 2 * time.Second})
	if !strings.HasPrefix(got, "file:/data/newsdesk.db?") {
		t.Fatalf("unexpected dsn prefix: %s", got)
	}
	for _, want := range []string{"journal_mode%28WAL%29", "busy_timeout%282000%29", "_txlock=immediate"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in dsn %s", want, got)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	version, err := db.Migrate(testMigrations, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}

	// Second run is a no-op.
	if _, err := db.Migrate(testMigrations, "migrations"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO notes (body) VALUES ('ok')`); err != nil {
		t.Fatalf("table missing after migrate: %v", err)
	}
}

func TestTransaction_RollsBack(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Migrate(testMigrations, "migrations"); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := db.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO notes (body) VALUES ('lost')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected rollback, found %d rows", n)
	}
}

func TestMigrateTable_Independent(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Migrate(testMigrations, "migrations"); err != nil {
		t.Fatal(err)
	}

	other := fstest.MapFS{
		"sql/1_tasks.up.sql":   {Data: []byte(`CREATE TABLE tasks (id INTEGER PRIMARY KEY);`)},
		"sql/1_tasks.down.sql": {Data: []byte(`DROP TABLE tasks;`)},
	}
	version, err := db.MigrateTable(other, "sql", "task_migrations")
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}

	for _, table := range []string{"notes", "tasks"} {
		if _, err := db.Exec(`SELECT COUNT(*) FROM ` + table); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
