// Package distribution fans VO tasks out to stations as independently
// tracked copies and reports how far a fan-out has come.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/task"
)

// Target is one station to receive a copy of a VO task.
type Target struct {
	StationID  string `json:"station_id"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Result reports the outcome of a distribution.
type Result struct {
	Created []*task.Task `json:"created"`
	Skipped int          `json:"skipped"`
	Message string       `json:"message"`
}

// Status describes the coverage of a distributed VO task.
type Status struct {
	Parent         *task.Task     `json:"parent_task"`
	Children       []*task.Task   `json:"children"`
	NotDistributed []*org.Station `json:"not_distributed_stations"`
	Stats          rollup.Stats   `json:"stats"`
}

// Engine distributes VO tasks to stations.
type Engine struct {
	tasks  task.Store
	orgs   org.Store
	bus    activity.Bus
	logger *slog.Logger
}

// New creates an Engine. A nil logger falls back to slog.Default.
func New(tasks task.Store, orgs org.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tasks: tasks, orgs: orgs, bus: activity.Nop{}, logger: logger}
}

// SetBus sets the bus distributions are reported on.
func (e *Engine) SetBus(bus activity.Bus) {
	e.bus = bus
}

// Distribute creates one station copy of the VO task parentID per target
// station that does not have one yet. Title, description, category and
// scheduling fields are copied once; later edits of the parent do not
// propagate. The copies are stored atomically.
func (e *Engine) Distribute(ctx context.Context, parentID string, targets []Target, actor org.Principal) (*Result, error) {
	parent, err := e.tasks.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.OwnerType != task.OwnerVO {
		return nil, task.Validationf("only VO tasks can be distributed")
	}
	if !actor.CanDistribute(parent) {
		return nil, task.Forbiddenf("not allowed to distribute task %s", parentID)
	}
	if len(targets) == 0 {
		return nil, task.Validationf("no stations selected")
	}

	var (
		ids      []string
		byID     = make(map[string]Target, len(targets))
		unknowns []string
	)
	for _, tg := range targets {
		if tg.StationID == "" {
			return nil, task.Validationf("target without station_id")
		}
		if _, dup := byID[tg.StationID]; dup {
			continue
		}
		byID[tg.StationID] = tg
		ids = append(ids, tg.StationID)
	}

	stations, err := e.orgs.StationsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve stations: %w", err)
	}
	found := make(map[string]*org.Station, len(stations))
	for _, st := range stations {
		found[st.ID] = st
	}
	for _, id := range ids {
		if st, ok := found[id]; !ok || st.VOID != parent.VOID {
			unknowns = append(unknowns, id)
		}
	}
	if len(unknowns) > 0 {
		return nil, &task.Error{
			Kind:    task.ErrValidation,
			Msg:     "stations do not belong to the task's VO",
			Details: unknowns,
		}
	}

	existing, err := task.Children(ctx, e.tasks, parentID, ids...)
	if err != nil {
		return nil, fmt.Errorf("existing children: %w", err)
	}
	has := make(map[string]bool, len(existing))
	for _, c := range existing {
		has[c.StationID] = true
	}

	var batch []*task.Task
	for _, id := range ids {
		if has[id] {
			continue
		}
		batch = append(batch, clone(parent, byID[id], actor.ID))
	}
	if len(batch) == 0 {
		return nil, task.Conflictf("all selected stations already have this task")
	}

	// The unique (parent_task_id, station_id) index rejects the whole batch
	// if a concurrent call got there first.
	if err := e.tasks.CreateBatch(ctx, batch); err != nil {
		if errors.Is(err, task.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create station tasks: %w", err)
	}

	res := &Result{
		Created: batch,
		Skipped: len(targets) - len(batch),
	}
	res.Message = fmt.Sprintf("Task distributed to %d stations", len(batch))
	if res.Skipped > 0 {
		res.Message += fmt.Sprintf(" (%d skipped, already distributed)", res.Skipped)
	}

	e.logger.Info("task distributed",
		slog.String("task_id", parentID),
		slog.String("actor", actor.ID),
		slog.Int("created", len(batch)),
		slog.Int("skipped", res.Skipped),
	)
	e.publish(ctx, &activity.Event{
		Type:    activity.TypeTaskDistributed,
		TaskID:  parentID,
		VOID:    parent.VOID,
		Actor:   actor.ID,
		Summary: parent.Title,
		Metadata: map[string]string{
			"created": strconv.Itoa(len(batch)),
			"skipped": strconv.Itoa(res.Skipped),
		},
	})
	return res, nil
}

// Status reports the children of parentID, the stations of the parent's VO
// still without a copy, and completion over the children.
func (e *Engine) Status(ctx context.Context, parentID string, actor org.Principal) (*Status, error) {
	parent, err := e.tasks.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(parent) {
		return nil, task.NotFoundf("task %s not found", parentID)
	}
	if parent.OwnerType != task.OwnerVO {
		return nil, task.Validationf("only VO tasks are distributed")
	}

	children, err := task.Children(ctx, e.tasks, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	stations, err := e.orgs.ListStations(ctx, parent.VOID)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	covered := make(map[string]bool, len(children))
	for _, c := range children {
		covered[c.StationID] = true
	}
	missing := make([]*org.Station, 0, len(stations))
	for _, st := range stations {
		if !covered[st.ID] {
			missing = append(missing, st)
		}
	}
	if children == nil {
		children = []*task.Task{}
	}

	return &Status{
		Parent:         parent,
		Children:       children,
		NotDistributed: missing,
		Stats:          rollup.Compute(children),
	}, nil
}

func (e *Engine) publish(ctx context.Context, ev *activity.Event) {
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("activity handler failed", slog.String("type", string(ev.Type)), slog.Any("err", err))
	}
}

func clone(parent *task.Task, tg Target, actorID string) *task.Task {
	c := &task.Task{
		Title:            parent.Title,
		Description:      parent.Description,
		Category:         parent.Category,
		Year:             parent.Year,
		RecurringMonthly: parent.RecurringMonthly,
		DeadlineDay:      parent.DeadlineDay,
		OwnerType:        task.OwnerStation,
		VOID:             parent.VOID,
		StationID:        tg.StationID,
		ParentTaskID:     parent.ID,
		Status:           task.StatusNotStarted,
		AssignedTo:       tg.AssignedTo,
		CreatedBy:        actorID,
	}
	if parent.StartMonth != nil {
		m := *parent.StartMonth
		c.StartMonth = &m
	}
	if parent.EndMonth != nil {
		m := *parent.EndMonth
		c.EndMonth = &m
	}
	return c
}
