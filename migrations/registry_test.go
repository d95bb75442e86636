package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	appshell "github.com/goliatone/go-appshell"
	_ "github.com/mattn/go-sqlite3"
)

func TestSet_FSPerDialect(t *testing.T) {
	set := New(nil)
	for _, dialect := range []string{DialectPostgres, DialectSQLite, "sqlite3", "PGX"} {
		fsys, err := set.FS(dialect)
		if err != nil {
			t.Fatalf("fs %s: %v", dialect, err)
		}
		matches, err := fs.Glob(fsys, "*.up.sql")
		if err != nil || len(matches) == 0 {
			t.Fatalf("expected %s up migrations, got %v %v", dialect, matches, err)
		}
	}
	if _, err := set.FS("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestSet_Versions(t *testing.T) {
	versions, err := New(nil).Versions(DialectSQLite)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	want := []string{"00001_appshell_analytics_outbox", "00002_appshell_analytics_outbox_dead_letter"}
	if len(versions) != len(want) || versions[0] != want[0] || versions[1] != want[1] {
		t.Fatalf("unexpected versions %v", versions)
	}
}

func TestSet_RejectsUnpairedMigration(t *testing.T) {
	root := fstest.MapFS{
		"data/sql/migrations/00001_a.up.sql":          {Data: []byte("SELECT 1;")},
		"data/sql/migrations/00001_a.down.sql":        {Data: []byte("SELECT 1;")},
		"data/sql/migrations/00002_b.up.sql":          {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_a.down.sql": {Data: []byte("SELECT 1;")},
	}
	set := New(root)
	if _, err := set.FS(DialectPostgres); err == nil || !strings.Contains(err.Error(), "00002_b.up.sql") {
		t.Fatalf("expected missing down migration error, got %v", err)
	}
	if _, err := set.FS(DialectSQLite); err != nil {
		t.Fatalf("expected sqlite tree to be valid, got %v", err)
	}
}

func TestRegister_SelectedDialects(t *testing.T) {
	var calls []string
	err := Register(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, "sqlite3", DialectSQLite)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}

	calls = nil
	if err := Register(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}); err != nil {
		t.Fatalf("register all: %v", err)
	}
	if len(calls) != 2 || calls[0] != DialectPostgres || calls[1] != DialectSQLite {
		t.Fatalf("expected every dialect in order, got %v", calls)
	}
}

func TestRegister_Errors(t *testing.T) {
	if err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
	boom := errors.New("boom")
	err := Register(context.Background(), func(context.Context, string, fs.FS) error { return boom }, DialectPostgres)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestOutboxMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := appshell.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_appshell_analytics_outbox.up.sql",
		"data/sql/migrations/00001_appshell_analytics_outbox.down.sql",
		"data/sql/migrations/sqlite/00001_appshell_analytics_outbox.up.sql",
		"data/sql/migrations/sqlite/00001_appshell_analytics_outbox.down.sql",
		"data/sql/migrations/00002_appshell_analytics_outbox_dead_letter.up.sql",
		"data/sql/migrations/00002_appshell_analytics_outbox_dead_letter.down.sql",
		"data/sql/migrations/sqlite/00002_appshell_analytics_outbox_dead_letter.up.sql",
		"data/sql/migrations/sqlite/00002_appshell_analytics_outbox_dead_letter.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteOutboxMigration_ApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", "file:migrations-outbox?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(appshell.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_appshell_analytics_outbox.up.sql"); err != nil {
		t.Fatalf("apply up: %v", err)
	}

	insert := `INSERT INTO appshell_analytics_outbox (id, event_id, kind, status, occurred_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "row-1", "evt-1", "track", "pending", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "row-2", "evt-1", "track", "pending", "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected duplicate event id to be rejected")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_appshell_analytics_outbox_dead_letter.up.sql"); err != nil {
		t.Fatalf("apply dead letter up: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE appshell_analytics_outbox SET status = ?, failed_at = ? WHERE event_id = ?`,
		"failed", "2026-01-01T00:05:00Z", "evt-1"); err != nil {
		t.Fatalf("dead letter row: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_appshell_analytics_outbox_dead_letter.down.sql"); err != nil {
		t.Fatalf("apply dead letter down: %v", err)
	}
	if _, err := db.ExecContext(ctx, `SELECT failed_at FROM appshell_analytics_outbox`); err == nil {
		t.Fatalf("expected failed_at to be dropped")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_appshell_analytics_outbox.down.sql"); err != nil {
		t.Fatalf("apply down: %v", err)
	}
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", "appshell_analytics_outbox").Scan(&name)
	if err != sql.ErrNoRows {
		t.Fatalf("expected outbox table to be dropped, got %q %v", name, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
