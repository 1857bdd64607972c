package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Barrelito/sam-a-sub000/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	category             TEXT NOT NULL DEFAULT '',
	year                 INTEGER NOT NULL,
	start_month          INTEGER,
	end_month            INTEGER,
	is_recurring_monthly INTEGER NOT NULL DEFAULT 0,
	deadline_day         INTEGER NOT NULL DEFAULT 0,
	owner_type           TEXT NOT NULL,
	vo_id                TEXT,
	station_id           TEXT,
	parent_task_id       TEXT,
	status               TEXT NOT NULL DEFAULT 'not_started',
	completed_at         DATETIME,
	completed_by         TEXT,
	vo_reviewed          INTEGER NOT NULL DEFAULT 0,
	vo_reviewed_at       DATETIME,
	vo_reviewed_by       TEXT,
	vo_comment           TEXT NOT NULL DEFAULT '',
	assigned_to          TEXT,
	notes                TEXT NOT NULL DEFAULT '',
	created_by           TEXT NOT NULL,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_parent_station
	ON tasks(parent_task_id, station_id) WHERE parent_task_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tasks_vo ON tasks(vo_id);
CREATE INDEX IF NOT EXISTS idx_tasks_station ON tasks(station_id);
CREATE INDEX IF NOT EXISTS idx_tasks_year ON tasks(year);
`

// Columns lists the task columns in scan order.
const Columns = `id, title, description, category, year, start_month, end_month,
	is_recurring_monthly, deadline_day, owner_type, vo_id, station_id, parent_task_id,
	status, completed_at, completed_by, vo_reviewed, vo_reviewed_at, vo_reviewed_by,
	vo_comment, assigned_to, notes, created_by, created_at, updated_at`

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite database and ensures the tasks table
// and its indexes exist.
func NewSQLiteStore(ctx context.Context, conn *sql.DB) (*SQLiteStore, error) {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create task schema: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

// Prepare assigns an ID (when missing) and timestamps to a task about to be
// inserted.
func Prepare(t *Task, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	now = now.UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Create persists a new task and sets its ID, CreatedAt, and UpdatedAt.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) (string, error) {
	Prepare(t, time.Now())
	if err := insertTask(ctx, s.db, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// CreateBatch inserts all tasks inside one transaction.
func (s *SQLiteStore) CreateBatch(ctx context.Context, tasks []*Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, t := range tasks {
		Prepare(t, now)
		if err := insertTask(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTask(ctx context.Context, ex execer, t *Task) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO tasks (`+Columns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		Values(t)...,
	)
	if db.IsUniqueViolation(err) {
		return &Error{
			Kind:    ErrConflict,
			Msg:     "station already has this task",
			Details: []string{t.StationID},
		}
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+Columns+` FROM tasks WHERE id = ?`, id)
	t, err := Scan(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundf("task %s not found", id)
	}
	return t, err
}

// Update saves changes to an existing task, updating UpdatedAt automatically.
func (s *SQLiteStore) Update(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, category=?, year=?, start_month=?, end_month=?,
			is_recurring_monthly=?, deadline_day=?, status=?, completed_at=?, completed_by=?,
			vo_reviewed=?, vo_reviewed_at=?, vo_reviewed_by=?, vo_comment=?,
			assigned_to=?, notes=?, updated_at=?
		WHERE id=?`,
		UpdateValues(t)...,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return NotFoundf("task %s not found", t.ID)
	}
	return nil
}

// List returns the tasks matching where, oldest first.
func (s *SQLiteStore) List(ctx context.Context, where Predicate) ([]*Task, error) {
	clause, args := SQL(where)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+Columns+` FROM tasks WHERE `+clause+` ORDER BY year DESC, created_at ASC, id ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task and every task distributed from it in one
// transaction.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE parent_task_id=?", id); err != nil {
		return fmt.Errorf("delete children: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return NotFoundf("task %s not found", id)
	}
	return tx.Commit()
}

// Values returns the insert arguments for t in Columns order.
func Values(t *Task) []any {
	return []any{
		t.ID, t.Title, t.Description, t.Category, t.Year,
		nullInt(t.StartMonth), nullInt(t.EndMonth),
		t.RecurringMonthly, t.DeadlineDay, string(t.OwnerType),
		nullString(t.VOID), nullString(t.StationID), nullString(t.ParentTaskID),
		string(t.Status), nullTime(t.CompletedAt), nullString(t.CompletedBy),
		t.VOReviewed, nullTime(t.VOReviewedAt), nullString(t.VOReviewedBy),
		t.VOComment, nullString(t.AssignedTo), t.Notes, t.CreatedBy,
		t.CreatedAt, t.UpdatedAt,
	}
}

// UpdateValues returns the arguments of the mutable columns followed by the
// task ID.
func UpdateValues(t *Task) []any {
	return []any{
		t.Title, t.Description, t.Category, t.Year,
		nullInt(t.StartMonth), nullInt(t.EndMonth),
		t.RecurringMonthly, t.DeadlineDay, string(t.Status),
		nullTime(t.CompletedAt), nullString(t.CompletedBy),
		t.VOReviewed, nullTime(t.VOReviewedAt), nullString(t.VOReviewedBy), t.VOComment,
		nullString(t.AssignedTo), t.Notes, t.UpdatedAt,
		t.ID,
	}
}

// Scanner abstracts sql.Row and sql.Rows (and pgx rows) for Scan.
type Scanner interface {
	Scan(dest ...any) error
}

// Scan reads one task row selected with Columns.
func Scan(s Scanner) (*Task, error) {
	var t Task
	var ownerType, status string
	var startMonth, endMonth sql.NullInt64
	var voID, stationID, parentID, completedBy, reviewedBy, assignedTo sql.NullString
	var completedAt, reviewedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.Year,
		&startMonth, &endMonth,
		&t.RecurringMonthly, &t.DeadlineDay, &ownerType,
		&voID, &stationID, &parentID,
		&status, &completedAt, &completedBy,
		&t.VOReviewed, &reviewedAt, &reviewedBy,
		&t.VOComment, &assignedTo, &t.Notes, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.OwnerType = OwnerType(ownerType)
	t.Status = Status(status)
	t.VOID = voID.String
	t.StationID = stationID.String
	t.ParentTaskID = parentID.String
	t.CompletedBy = completedBy.String
	t.VOReviewedBy = reviewedBy.String
	t.AssignedTo = assignedTo.String

	if startMonth.Valid {
		m := int(startMonth.Int64)
		t.StartMonth = &m
	}
	if endMonth.Valid {
		m := int(endMonth.Int64)
		t.EndMonth = &m
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if reviewedAt.Valid {
		t.VOReviewedAt = &reviewedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
