package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// ErrSessionClosed is returned when a closed session is used
var ErrSessionClosed = errors.New("session is closed")

// queryer is satisfied by both a reserved connection and an open transaction
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Session is a request-scoped unit of work. It holds one pooled connection
// for its lifetime and at most one open transaction at a time.
// A Session is not safe for concurrent use.
type Session struct {
	ID string

	conn   *sqlx.Conn
	tx     *sqlx.Tx
	closed bool
}

// OpenSession reserves a connection from the pool for a new session.
// The caller must Close it.
func (db *DB) OpenSession(ctx context.Context) (*Session, error) {
	conn, err := db.conn.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	s := &Session{
		ID:   uuid.NewString(),
		conn: conn,
	}
	log.Trace().Str("session_id", s.ID).Msg("Session opened")
	return s, nil
}

// Begin starts a transaction on the session. Calling it while a transaction
// is already open is a no-op.
func (s *Session) Begin(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return nil
	}

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction, if any
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the open transaction, if any
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether the session has an uncommitted transaction
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Close rolls back uncommitted work and returns the connection to the pool.
// Closing an already closed session does nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	rbErr := s.Rollback()
	if rbErr != nil {
		log.Error().Err(rbErr).Str("session_id", s.ID).Msg("Failed to rollback session transaction")
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to release connection: %w", err)
	}

	log.Trace().Str("session_id", s.ID).Msg("Session closed")
	return rbErr
}

// q returns the open transaction, or the reserved connection outside one
func (s *Session) q() (queryer, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

// fail rolls back the open transaction and returns err unchanged
func (s *Session) fail(err error) error {
	if rbErr := s.Rollback(); rbErr != nil {
		log.Error().Err(rbErr).Str("session_id", s.ID).Msg("Failed to rollback transaction")
	}
	return err
}
