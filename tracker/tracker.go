// Package tracker implements the request-level task operations: creating,
// reading, updating, listing and deleting tasks on behalf of a principal.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

// Service applies visibility, permission and lifecycle rules around the
// task and org stores.
type Service struct {
	tasks  task.Store
	orgs   org.Store
	bus    activity.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. A nil logger falls back to slog.Default.
func NewService(tasks task.Store, orgs org.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		orgs:   orgs,
		bus:    activity.Nop{},
		logger: logger,
		now:    time.Now,
	}
}

// SetBus sets the bus task changes are published on.
func (s *Service) SetBus(bus activity.Bus) {
	s.bus = bus
}

// NewTask holds the caller-supplied fields of a task to create.
type NewTask struct {
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Category         string         `json:"category"`
	Year             int            `json:"year"`
	StartMonth       *int           `json:"start_month,omitempty"`
	EndMonth         *int           `json:"end_month,omitempty"`
	RecurringMonthly bool           `json:"is_recurring_monthly"`
	DeadlineDay      int            `json:"deadline_day,omitempty"`
	OwnerType        task.OwnerType `json:"owner_type"`
	VOID             string         `json:"vo_id,omitempty"`
	StationID        string         `json:"station_id,omitempty"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	Notes            string         `json:"notes,omitempty"`
}

// CreateTask creates an original task. Station tasks inherit the VO of
// their station; personal tasks are anchored to the actor.
func (s *Service) CreateTask(ctx context.Context, actor org.Principal, in NewTask) (*task.Task, error) {
	t := &task.Task{
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		Year:             in.Year,
		StartMonth:       in.StartMonth,
		EndMonth:         in.EndMonth,
		RecurringMonthly: in.RecurringMonthly,
		DeadlineDay:      in.DeadlineDay,
		OwnerType:        in.OwnerType,
		Status:           task.StatusNotStarted,
		AssignedTo:       in.AssignedTo,
		Notes:            in.Notes,
		CreatedBy:        actor.ID,
	}
	if t.Year == 0 {
		t.Year = s.now().Year()
	}

	var st *org.Station
	switch in.OwnerType {
	case task.OwnerVO:
		if in.VOID == "" {
			return nil, task.Validationf("vo task requires vo_id")
		}
		if _, err := s.orgs.GetVO(ctx, in.VOID); err != nil {
			return nil, asValidation(err, "unknown VO %s", in.VOID)
		}
		t.VOID = in.VOID
	case task.OwnerStation:
		if in.StationID == "" {
			return nil, task.Validationf("station task requires station_id")
		}
		var err error
		if st, err = s.orgs.GetStation(ctx, in.StationID); err != nil {
			return nil, asValidation(err, "unknown station %s", in.StationID)
		}
		t.StationID = st.ID
		t.VOID = st.VOID
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanCreate(t, st) {
		return nil, task.Forbiddenf("not allowed to create %s tasks here", t.OwnerType)
	}
	if _, err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("owner_type", string(t.OwnerType)),
		slog.String("actor", actor.ID),
	)
	s.publish(ctx, activity.TypeTaskCreated, t, actor, nil)
	return t, nil
}

// GetTask returns task id if the actor can see it. Invisible tasks are
// reported as not found.
func (s *Service) GetTask(ctx context.Context, actor org.Principal, id string) (*task.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(t) {
		return nil, task.NotFoundf("task %s not found", id)
	}
	return t, nil
}

// ListTasks returns the tasks visible to actor that match f.
func (s *Service) ListTasks(ctx context.Context, actor org.Principal, f task.Filter) ([]*task.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, task.And(actor.VisibilityPredicate(), f.Predicate()))
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

// DeleteTask deletes task id together with any copies distributed from it.
func (s *Service) DeleteTask(ctx context.Context, actor org.Principal, id string) error {
	t, err := s.GetTask(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.CanDelete(t) {
		return task.Forbiddenf("not allowed to delete task %s", id)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", slog.String("task_id", id), slog.String("actor", actor.ID))
	s.publish(ctx, activity.TypeTaskDeleted, t, actor, nil)
	return nil
}

// Activity returns recent task events the actor may follow: every VO for
// an admin, otherwise the actor's own VO.
func (s *Service) Activity(actor org.Principal, limit int) ([]*activity.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var (
		evs []*activity.Event
		err error
	)
	switch {
	case actor.Role == org.RoleAdmin && actor.ID != "":
		evs, err = s.bus.History("", limit)
	case actor.VOID != "" && actor.ID != "":
		evs, err = s.bus.History(actor.VOID, limit)
	}
	if evs == nil && err == nil {
		evs = []*activity.Event{}
	}
	return evs, err
}

func (s *Service) publish(ctx context.Context, typ activity.EventType, t *task.Task, actor org.Principal, meta map[string]string) {
	ev := &activity.Event{
		Type:      typ,
		TaskID:    t.ID,
		VOID:      t.VOID,
		StationID: t.StationID,
		Actor:     actor.ID,
		Summary:   t.Title,
		Metadata:  meta,
		Timestamp: s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("activity handler failed", slog.String("type", string(typ)), slog.Any("err", err))
	}
}

// asValidation turns a not-found lookup of a referenced entity into a
// validation error; other errors pass through.
func asValidation(err error, format string, args ...any) error {
	if task.KindOf(err) == "not_found" {
		return task.Validationf(format, args...)
	}
	return err
}
