package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrTodoNotFound is returned when no todo exists for the requested id
var ErrTodoNotFound = errors.New("todo not found")

// Todo is the single persisted record type. ID is nil until the record
// has been stored.
type Todo struct {
	ID      *int64 `db:"id" json:"id"`
	Content string `db:"content" json:"content"`
}

// CreateTodo inserts a new todo and returns it with its assigned id
func (s *Session) CreateTodo(ctx context.Context, content string) (*Todo, error) {
	if err := s.Begin(ctx); err != nil {
		return nil, err
	}

	result, err := s.tx.ExecContext(ctx, `INSERT INTO todos (content) VALUES (?)`, content)
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to create todo: %w", err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to get todo id: %w", err))
	}

	if err := s.Commit(); err != nil {
		return nil, err
	}

	return s.GetTodo(ctx, id)
}

// ListTodos returns every todo in insertion order
func (s *Session) ListTodos(ctx context.Context) ([]*Todo, error) {
	q, err := s.q()
	if err != nil {
		return nil, err
	}

	todos := []*Todo{}
	if err := sqlx.SelectContext(ctx, q, &todos, `SELECT id, content FROM todos ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

// GetTodo returns the todo with the given id, or ErrTodoNotFound
func (s *Session) GetTodo(ctx context.Context, id int64) (*Todo, error) {
	q, err := s.q()
	if err != nil {
		return nil, err
	}

	var todo Todo
	err = sqlx.GetContext(ctx, q, &todo, `SELECT id, content FROM todos WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTodoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo %d: %w", id, err)
	}
	return &todo, nil
}

// UpdateTodo replaces the content of an existing todo and returns the stored result
func (s *Session) UpdateTodo(ctx context.Context, id int64, content string) (*Todo, error) {
	if err := s.Begin(ctx); err != nil {
		return nil, err
	}

	if _, err := s.GetTodo(ctx, id); err != nil {
		return nil, s.fail(err)
	}

	if _, err := s.tx.ExecContext(ctx, `UPDATE todos SET content = ? WHERE id = ?`, content, id); err != nil {
		return nil, s.fail(fmt.Errorf("failed to update todo %d: %w", id, err))
	}

	if err := s.Commit(); err != nil {
		return nil, err
	}

	return s.GetTodo(ctx, id)
}

// DeleteTodo removes a todo and returns its state from before the delete
func (s *Session) DeleteTodo(ctx context.Context, id int64) (*Todo, error) {
	if err := s.Begin(ctx); err != nil {
		return nil, err
	}

	todo, err := s.GetTodo(ctx, id)
	if err != nil {
		return nil, s.fail(err)
	}

	if _, err := s.tx.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
		return nil, s.fail(fmt.Errorf("failed to delete todo %d: %w", id, err))
	}

	if err := s.Commit(); err != nil {
		return nil, err
	}

	return todo, nil
}

// CountTodos returns the number of stored todos
func (s *Session) CountTodos(ctx context.Context) (int, error) {
	q, err := s.q()
	if err != nil {
		return 0, err
	}

	var count int
	if err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM todos`); err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return count, nil
}
