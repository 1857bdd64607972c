// Package task defines the task model, its lifecycle rules, the predicate
// language used for visibility and filtering, and SQLite persistence.
package task

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusReported   Status = "reported"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusDone, StatusReported:
		return true
	}
	return false
}

// Completed reports whether s counts as completed in rollups.
// Reported is treated exactly like done.
func (s Status) Completed() bool {
	return s == StatusDone || s == StatusReported
}

// OwnerType identifies which organizational anchor owns a task.
type OwnerType string

const (
	OwnerVO       OwnerType = "vo"
	OwnerStation  OwnerType = "station"
	OwnerPersonal OwnerType = "personal"
)

// Valid reports whether o is one of the known owner types.
func (o OwnerType) Valid() bool {
	switch o {
	case OwnerVO, OwnerStation, OwnerPersonal:
		return true
	}
	return false
}

// Task is a recurring organizational obligation owned by a VO, a station or
// a single person. Station tasks with a ParentTaskID are distributed copies of
// a VO task.
type Task struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Year             int       `json:"year"`
	StartMonth       *int      `json:"start_month,omitempty"`
	EndMonth         *int      `json:"end_month,omitempty"`
	RecurringMonthly bool      `json:"is_recurring_monthly"`
	DeadlineDay      int       `json:"deadline_day,omitempty"`
	OwnerType        OwnerType `json:"owner_type"`
	VOID             string    `json:"vo_id,omitempty"`
	StationID        string    `json:"station_id,omitempty"`
	ParentTaskID     string    `json:"parent_task_id,omitempty"`
	Status           Status    `json:"status"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`

	VOReviewed   bool       `json:"vo_reviewed"`
	VOReviewedAt *time.Time `json:"vo_reviewed_at,omitempty"`
	VOReviewedBy string     `json:"vo_reviewed_by,omitempty"`
	VOComment    string     `json:"vo_comment,omitempty"`

	AssignedTo string    `json:"assigned_to,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.StartMonth = cloneInt(t.StartMonth)
	c.EndMonth = cloneInt(t.EndMonth)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.VOReviewedAt = cloneTime(t.VOReviewedAt)
	return &c
}

// MatchesMonth reports whether the task is active in month m. Monthly
// recurring tasks match every month; otherwise m must fall inside
// [start_month, end_month], where a missing end month means start_month.
func (t *Task) MatchesMonth(m int) bool {
	if t.RecurringMonthly {
		return true
	}
	if t.StartMonth == nil {
		return false
	}
	end := *t.StartMonth
	if t.EndMonth != nil {
		end = *t.EndMonth
	}
	return *t.StartMonth <= m && m <= end
}

// Store persists and retrieves tasks.
type Store interface {
	// Create persists a new task and returns its assigned ID.
	Create(ctx context.Context, t *Task) (string, error)

	// CreateBatch persists all tasks in one transaction. Either every task is
	// stored or none is.
	CreateBatch(ctx context.Context, tasks []*Task) error

	// Get retrieves a task by ID.
	Get(ctx context.Context, id string) (*Task, error)

	// Update saves changes to an existing task.
	Update(ctx context.Context, t *Task) error

	// List returns the tasks matching where.
	List(ctx context.Context, where Predicate) ([]*Task, error)

	// Delete removes a task, together with any tasks distributed from it.
	Delete(ctx context.Context, id string) error
}

// Children returns the tasks distributed from parentID. When stationIDs is
// non-empty only children at those stations are returned.
func Children(ctx context.Context, s Store, parentID string, stationIDs ...string) ([]*Task, error) {
	where := Eq(FieldParentTaskID, parentID)
	if len(stationIDs) > 0 {
		where = And(where, In(FieldStationID, stationIDs...))
	}
	return s.List(ctx, where)
}

// Filter holds the explicit query filters a caller may combine with a
// visibility predicate. Zero values mean "no restriction".
type Filter struct {
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Category  string    `json:"category,omitempty"`
	OwnerType OwnerType `json:"owner_type,omitempty"`
	StationID string    `json:"station_id,omitempty"`
	VOID      string    `json:"vo_id,omitempty"`
}

// Predicate converts the filter into a predicate.
func (f Filter) Predicate() Predicate {
	var ps []Predicate
	if f.Year != 0 {
		ps = append(ps, Eq(FieldYear, f.Year))
	}
	if f.Month != 0 {
		ps = append(ps, InMonth(f.Month))
	}
	if f.Status != "" {
		ps = append(ps, Eq(FieldStatus, f.Status))
	}
	if f.Category != "" {
		ps = append(ps, Eq(FieldCategory, f.Category))
	}
	if f.OwnerType != "" {
		ps = append(ps, Eq(FieldOwnerType, f.OwnerType))
	}
	if f.StationID != "" {
		ps = append(ps, Eq(FieldStationID, f.StationID))
	}
	if f.VOID != "" {
		ps = append(ps, Eq(FieldVOID, f.VOID))
	}
	return And(ps...)
}

// Validate rejects filter values outside their domains.
func (f Filter) Validate() error {
	if f.Month != 0 && (f.Month < 1 || f.Month > 12) {
		return Validationf("month must be between 1 and 12, got %d", f.Month)
	}
	if f.Status != "" && !f.Status.Valid() {
		return Validationf("unknown status %q", f.Status)
	}
	if f.OwnerType != "" && !f.OwnerType.Valid() {
		return Validationf("unknown owner type %q", f.OwnerType)
	}
	return nil
}

// Validate checks the invariants a single row must satisfy on its own.
func (t *Task) Validate() error {
	if t.Title == "" {
		return Validationf("title is required")
	}
	if !t.OwnerType.Valid() {
		return Validationf("unknown owner type %q", t.OwnerType)
	}
	if !t.Status.Valid() {
		return Validationf("unknown status %q", t.Status)
	}
	switch t.OwnerType {
	case OwnerVO:
		if t.VOID == "" {
			return Validationf("vo task requires vo_id")
		}
	case OwnerStation:
		if t.StationID == "" {
			return Validationf("station task requires station_id")
		}
	case OwnerPersonal:
		if t.CreatedBy == "" {
			return Validationf("personal task requires created_by")
		}
	}
	if t.ParentTaskID != "" {
		if t.ParentTaskID == t.ID {
			return Validationf("task cannot be its own parent")
		}
		if t.OwnerType != OwnerStation {
			return Validationf("only station tasks can have a parent task")
		}
	}
	if t.StartMonth != nil && (*t.StartMonth < 1 || *t.StartMonth > 12) {
		return Validationf("start_month must be between 1 and 12")
	}
	if t.EndMonth != nil {
		if *t.EndMonth < 1 || *t.EndMonth > 12 {
			return Validationf("end_month must be between 1 and 12")
		}
		if t.StartMonth == nil {
			return Validationf("end_month requires start_month")
		}
		if *t.EndMonth < *t.StartMonth {
			return Validationf("end_month %d is before start_month %d", *t.EndMonth, *t.StartMonth)
		}
	}
	if t.DeadlineDay != 0 && (t.DeadlineDay < 1 || t.DeadlineDay > 31) {
		return Validationf("deadline_day must be between 1 and 31")
	}
	return nil
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
