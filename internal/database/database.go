package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Options controls connection pool behaviour
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the pool settings used when none are configured.
// Connections are recycled every 5 minutes.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DB wraps the SQLite connection pool
type DB struct {
	conn *sqlx.DB
	path string
	opts Options
	mu   sync.Mutex
}

// ParseURL converts a database URL into a modernc sqlite data source name.
// Accepted forms are sqlite://<path>, sqlite::memory:, file:<path> and bare paths.
func ParseURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", fmt.Errorf("database url is empty")
	case url == "sqlite::memory:" || url == ":memory:":
		return ":memory:", nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", fmt.Errorf("database url %q has no path", url)
		}
		return path, nil
	case strings.HasPrefix(url, "file:"):
		return url, nil
	case strings.Contains(url, "://"):
		scheme := url[:strings.Index(url, "://")]
		return "", fmt.Errorf("unsupported database scheme %q", scheme)
	}
	return url, nil
}

// IsMemory reports whether a data source name returned by ParseURL names an
// in-memory database, where every pooled connection sees its own empty store.
func IsMemory(path string) bool {
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return true
	}
	if !strings.HasPrefix(path, "file:") {
		return false
	}
	_, query, ok := strings.Cut(path, "?")
	if !ok {
		return false
	}
	for param := range strings.SplitSeq(query, "&") {
		if param == "mode=memory" {
			return true
		}
	}
	return false
}

// New opens the database at url and applies the pool options
func New(url string, opts Options) (*DB, error) {
	path, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	// WAL lets todo reads proceed while a write holds the lock. Write
	// transactions take the lock up front (_txlock=immediate) so the busy
	// timeout applies to them instead of failing a read-then-write upgrade.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if IsMemory(path) {
		// Pin to one connection so migrations and sessions share the store
		opts.MaxOpenConns = 1
		opts.MaxIdleConns = 1
		opts.ConnMaxLifetime = 0
	}

	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(opts.ConnMaxLifetime)

	log.Debug().
		Str("path", path).
		Int("max_open_conns", opts.MaxOpenConns).
		Dur("conn_max_lifetime", opts.ConnMaxLifetime).
		Msg("Database connection established")

	return &DB{
		conn: conn,
		path: path,
		opts: opts,
	}, nil
}

// Options returns the pool settings in effect, after in-memory adjustments
func (db *DB) Options() Options {
	return db.opts
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the store is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// transaction wraps a function in a database transaction
func (db *DB) transaction(fn func(*sqlx.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
