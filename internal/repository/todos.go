package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"todo-api/internal/database"
	"todo-api/internal/models"
)

// ErrNotFound is returned by FindByID when no row has the id.
var ErrNotFound = errors.New("todo row not found")

const selectColumns = `SELECT id, title, completed, created_at, updated_at FROM todos`

// Changes lists the columns an Update should set; nil fields are left alone.
type Changes struct {
	Title     *string
	Completed *bool
}

// Empty reports whether no column would be set.
func (c Changes) Empty() bool {
	return c.Title == nil && c.Completed == nil
}

// List returns every todo, newest first.
func List(ctx context.Context, q database.Querier) ([]models.Todo, error) {
	rows, err := q.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, database.Wrap(ctx, "list todos", err)
	}
	defer rows.Close()

	todos := make([]models.Todo, 0)
	for rows.Next() {
		var t models.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, database.Wrap(ctx, "scan todo", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap(ctx, "list todos", err)
	}
	return todos, nil
}

// FindByID returns the todo with the given id or ErrNotFound.
func FindByID(ctx context.Context, q database.Querier, id int64) (*models.Todo, error) {
	var t models.Todo
	err := q.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id).
		Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap(ctx, "get todo", err)
	}
	return &t, nil
}

// Insert stores a new todo and returns the id generated by the store.
// Timestamps come from column defaults.
func Insert(ctx context.Context, q database.Querier, title string, completed bool) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO todos (title, completed) VALUES ($1, $2) RETURNING id`,
		title, completed).Scan(&id)
	if err != nil {
		return 0, database.Wrap(ctx, "insert todo", err)
	}
	return id, nil
}

// Update sets the supplied columns and returns the number of rows affected.
// updated_at is maintained by the store trigger.
func Update(ctx context.Context, q database.Querier, id int64, c Changes) (int64, error) {
	if c.Empty() {
		return 0, nil
	}
	var (
		sets []string
		args []any
	)
	if c.Title != nil {
		args = append(args, *c.Title)
		sets = append(sets, "title = $"+strconv.Itoa(len(args)))
	}
	if c.Completed != nil {
		args = append(args, *c.Completed)
		sets = append(sets, "completed = $"+strconv.Itoa(len(args)))
	}
	args = append(args, id)
	query := `UPDATE todos SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, database.Wrap(ctx, "update todo", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Wrap(ctx, "update todo", err)
	}
	return n, nil
}

// Delete removes a todo and returns the number of rows affected.
func Delete(ctx context.Context, q database.Querier, id int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return 0, database.Wrap(ctx, "delete todo", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Wrap(ctx, "delete todo", err)
	}
	return n, nil
}
