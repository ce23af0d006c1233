package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Migrate creates the schema if it does not exist yet. It is safe to run
// against an already initialized database.
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

		if err := db.transaction(func(tx *sqlx.Tx) error {
			for i, stmt := range splitSQLStatements(migration.SQL) {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
				}
			}

			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}

			return nil
		}); err != nil {
			return err
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

// SchemaVersion returns the highest applied migration version
func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.conn.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// Comment lines and empty statements are dropped.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_todos",
		SQL: `
			-- AUTOINCREMENT keeps deleted ids from being handed out again
			CREATE TABLE IF NOT EXISTS todos (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_todos_content ON todos(content);
		`,
	},
}
