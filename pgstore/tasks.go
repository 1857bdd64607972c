package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Barrelito/sam-a-sub000/task"
)

// TaskStore implements task.Store on PostgreSQL.
type TaskStore struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*TaskStore)(nil)

const insertTaskSQL = `INSERT INTO tasks (` + task.Columns + `)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// Create persists a new task and sets its ID, CreatedAt, and UpdatedAt.
func (s *TaskStore) Create(ctx context.Context, t *task.Task) (string, error) {
	task.Prepare(t, time.Now())
	if _, err := s.pool.Exec(ctx, rebind(insertTaskSQL), task.Values(t)...); err != nil {
		return "", insertError(err, t)
	}
	return t.ID, nil
}

// CreateBatch inserts all tasks inside one transaction.
func (s *TaskStore) CreateBatch(ctx context.Context, tasks []*task.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	q := rebind(insertTaskSQL)
	for _, t := range tasks {
		task.Prepare(t, now)
		if _, err := tx.Exec(ctx, q, task.Values(t)...); err != nil {
			return insertError(err, t)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func insertError(err error, t *task.Task) error {
	if isUniqueViolation(err) {
		return &task.Error{
			Kind:    task.ErrConflict,
			Msg:     "station already has this task",
			Details: []string{t.StationID},
		}
	}
	return fmt.Errorf("insert task: %w", err)
}

// Get retrieves a task by ID.
func (s *TaskStore) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+task.Columns+` FROM tasks WHERE id = $1`, id)
	t, err := task.Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.NotFoundf("task %s not found", id)
	}
	return t, err
}

// Update saves changes to an existing task, updating UpdatedAt automatically.
func (s *TaskStore) Update(ctx context.Context, t *task.Task) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, rebind(`
		UPDATE tasks SET
			title=?, description=?, category=?, year=?, start_month=?, end_month=?,
			is_recurring_monthly=?, deadline_day=?, status=?, completed_at=?, completed_by=?,
			vo_reviewed=?, vo_reviewed_at=?, vo_reviewed_by=?, vo_comment=?,
			assigned_to=?, notes=?, updated_at=?
		WHERE id=?`),
		task.UpdateValues(t)...,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.NotFoundf("task %s not found", t.ID)
	}
	return nil
}

// List returns the tasks matching where, oldest first.
func (s *TaskStore) List(ctx context.Context, where task.Predicate) ([]*task.Task, error) {
	clause, args := task.SQL(where)
	rows, err := s.pool.Query(ctx,
		rebind(`SELECT `+task.Columns+` FROM tasks WHERE `+clause+` ORDER BY year DESC, created_at ASC, id ASC`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := task.Scan(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task and every task distributed from it in one
// transaction.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE parent_task_id = $1`, id); err != nil {
		return fmt.Errorf("delete children: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.NotFoundf("task %s not found", id)
	}
	return tx.Commit(ctx)
}
