package database

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var errNotOpen = errors.New("todo store is not open")

// Optimize refreshes the query planner statistics used by the todo
// listing and content index.
func (db *DB) Optimize() error {
	return db.maintain("optimize", "PRAGMA optimize")
}

// Vacuum rebuilds the file to reclaim pages freed by deleted todos, then
// truncates the WAL so the reclaimed space is returned to the filesystem.
func (db *DB) Vacuum() error {
	before, _ := db.sizeBytes()
	if err := db.maintain("vacuum", "VACUUM", "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	if after, err := db.sizeBytes(); err == nil {
		log.Debug().Str("path", db.path).Int64("reclaimed_bytes", before-after).Msg("Todo store vacuumed")
	}
	return nil
}

// maintain runs whole-store statements one after another, holding the
// migration lock so they never overlap a schema change.
func (db *DB) maintain(op string, stmts ...string) error {
	if db == nil || db.conn == nil {
		return fmt.Errorf("%s: %w", op, errNotOpen)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("%s failed on %q: %w", op, stmt, err)
		}
	}
	return nil
}

func (db *DB) sizeBytes() (int64, error) {
	if db == nil || db.conn == nil {
		return 0, errNotOpen
	}
	var size int64
	err := db.conn.Get(&size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	return size, err
}
