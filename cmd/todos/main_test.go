package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/saltyorg/todos/internal/config"
	"github.com/saltyorg/todos/internal/database"
)

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	url := "sqlite://" + filepath.Join(dir, "todos.db")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--database-url", url, "--log-file", filepath.Join(dir, "todos.log")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate command failed: %v", err)
	}

	db, err := database.New(url, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to reopen db: %v", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion returned error: %v", err)
	}
	if version < 1 {
		t.Fatalf("expected schema to be created, got version %d", version)
	}
}

func TestMaintenanceCommand(t *testing.T) {
	dir := t.TempDir()
	url := "sqlite://" + filepath.Join(dir, "todos.db")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"maintenance", "--database-url", url, "--log-file", filepath.Join(dir, "todos.log")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("maintenance command failed: %v", err)
	}
}

func TestMigrateCommand_RejectsUnsupportedURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"migrate", "--database-url", "postgresql://localhost/todos"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for postgres url")
	}
}

func TestCheckDatabase(t *testing.T) {
	db, err := database.New("sqlite://"+filepath.Join(t.TempDir(), "todos.db"), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	if _, err := checkDatabase(context.Background(), db); err == nil {
		t.Fatal("expected error counting todos before migration")
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	count, err := checkDatabase(context.Background(), db)
	if err != nil {
		t.Fatalf("checkDatabase returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty store, got %d todos", count)
	}

	db.Close()
	if _, err := checkDatabase(context.Background(), db); err == nil {
		t.Fatal("expected error pinging closed database")
	}
}

func TestMigrateCommand_FlagAtDefaultBeatsEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgresql://localhost/todos")

	cmd := newRootCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"migrate", "--database-url", config.DefaultDatabaseURL, "--log-file", "todos.log"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected explicit --database-url to win over env: %v", err)
	}
}
