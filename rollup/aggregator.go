package rollup

import (
	"context"

	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

// Aggregator answers the monitoring queries of VO chiefs and station
// managers. Every query is scoped by the acting principal.
type Aggregator struct {
	tasks task.Store
	orgs  org.Store
}

// NewAggregator creates an Aggregator over the given stores.
func NewAggregator(tasks task.Store, orgs org.Store) *Aggregator {
	return &Aggregator{tasks: tasks, orgs: orgs}
}

// StationSummary holds the tasks of one station in one month.
type StationSummary struct {
	Station *org.Station `json:"station"`
	Year    int          `json:"year"`
	Month   int          `json:"month,omitempty"`
	Stats   Stats        `json:"stats"`
	Tasks   []*task.Task `json:"tasks"`
}

// StationTotals is one row of a VO overview.
type StationTotals struct {
	Station *org.Station `json:"station"`
	Stats   Stats        `json:"stats"`
}

// Overview summarizes all stations of a VO for one month.
type Overview struct {
	VO             *org.VO         `json:"vo"`
	Year           int             `json:"year"`
	Month          int             `json:"month,omitempty"`
	Stations       []StationTotals `json:"stations"`
	NotDistributed int             `json:"not_distributed"`
	Totals         Stats           `json:"totals"`
}

// TertialTotals holds the station-task totals of one tertial.
type TertialTotals struct {
	Tertial int   `json:"tertial"`
	Months  []int `json:"months"`
	Stats   Stats `json:"stats"`
}

// ParentProgress computes completion over the children distributed from
// parentID.
func (a *Aggregator) ParentProgress(ctx context.Context, actor org.Principal, parentID string) (Stats, error) {
	parent, err := a.tasks.Get(ctx, parentID)
	if err != nil {
		return Stats{}, err
	}
	if !actor.CanSee(parent) {
		return Stats{}, task.NotFoundf("task %s not found", parentID)
	}
	children, err := task.Children(ctx, a.tasks, parentID)
	if err != nil {
		return Stats{}, err
	}
	return Compute(children), nil
}

// StationMonth partitions the tasks of stationID visible to actor for the
// given year and month. A zero month covers the whole year.
func (a *Aggregator) StationMonth(ctx context.Context, actor org.Principal, stationID string, year, month int) (*StationSummary, error) {
	if err := checkPeriod(year, month); err != nil {
		return nil, err
	}
	st, err := a.orgs.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if !actor.CanViewStation(st) {
		return nil, task.Forbiddenf("no access to station %s", stationID)
	}

	f := task.Filter{Year: year, Month: month, StationID: st.ID}
	tasks, err := a.tasks.List(ctx, task.And(actor.VisibilityPredicate(), f.Predicate()))
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return &StationSummary{
		Station: st,
		Year:    year,
		Month:   month,
		Stats:   Compute(tasks),
		Tasks:   tasks,
	}, nil
}

// ReviewQueue lists the station tasks of voID waiting for VO review. An
// empty voID means the actor's own VO, or every VO for an admin without one.
func (a *Aggregator) ReviewQueue(ctx context.Context, actor org.Principal, voID string) ([]*task.Task, error) {
	if voID == "" {
		voID = actor.VOID
	}
	if voID == "" && actor.Role != org.RoleAdmin {
		return nil, task.Forbiddenf("no VO to review")
	}
	if voID != "" && !actor.CanManageVO(voID) {
		return nil, task.Forbiddenf("no access to VO %s", voID)
	}

	where := task.And(
		actor.VisibilityPredicate(),
		task.Eq(task.FieldOwnerType, task.OwnerStation),
		task.Eq(task.FieldStatus, task.StatusDone),
		task.Eq(task.FieldVOReviewed, false),
	)
	if voID != "" {
		where = task.And(where, task.Eq(task.FieldVOID, voID))
	}
	tasks, err := a.tasks.List(ctx, where)
	if err != nil {
		return nil, err
	}
	return NeedsReview(tasks), nil
}

// VOOverview combines the station-month totals of every station in voID
// and counts the VO tasks of the year not yet distributed to any station.
func (a *Aggregator) VOOverview(ctx context.Context, actor org.Principal, voID string, year, month int) (*Overview, error) {
	if err := checkPeriod(year, month); err != nil {
		return nil, err
	}
	vo, stations, err := a.voStations(ctx, actor, voID)
	if err != nil {
		return nil, err
	}

	f := task.Filter{Year: year, Month: month}
	tasks, err := a.stationTasks(ctx, actor, stations, f.Predicate())
	if err != nil {
		return nil, err
	}
	byStation := make(map[string][]*task.Task)
	for _, t := range tasks {
		byStation[t.StationID] = append(byStation[t.StationID], t)
	}

	ov := &Overview{VO: vo, Year: year, Month: month, Stations: make([]StationTotals, 0, len(stations))}
	for _, st := range stations {
		s := Compute(byStation[st.ID])
		ov.Stations = append(ov.Stations, StationTotals{Station: st, Stats: s})
		ov.Totals.Merge(s)
	}

	ov.NotDistributed, err = a.notDistributed(ctx, actor, voID, year)
	if err != nil {
		return nil, err
	}
	return ov, nil
}

// TertialOverview groups the station tasks of voID for year into the three
// tertials. A task spanning several tertials counts in each of them.
func (a *Aggregator) TertialOverview(ctx context.Context, actor org.Principal, voID string, year int) ([]TertialTotals, error) {
	if err := checkPeriod(year, 0); err != nil {
		return nil, err
	}
	_, stations, err := a.voStations(ctx, actor, voID)
	if err != nil {
		return nil, err
	}
	tasks, err := a.stationTasks(ctx, actor, stations, task.Eq(task.FieldYear, year))
	if err != nil {
		return nil, err
	}

	out := make([]TertialTotals, 0, 3)
	for n := 1; n <= 3; n++ {
		months := TertialMonths(n)
		tt := TertialTotals{Tertial: n, Months: months}
		for _, t := range tasks {
			if matchesAny(t, months) {
				tt.Stats.add(t)
			}
		}
		tt.Stats.Percentage = Percentage(tt.Stats.Completed, tt.Stats.Total)
		out = append(out, tt)
	}
	return out, nil
}

func (a *Aggregator) voStations(ctx context.Context, actor org.Principal, voID string) (*org.VO, []*org.Station, error) {
	vo, err := a.orgs.GetVO(ctx, voID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanManageVO(vo.ID) {
		return nil, nil, task.Forbiddenf("no access to VO %s", voID)
	}
	stations, err := a.orgs.ListStations(ctx, vo.ID)
	if err != nil {
		return nil, nil, err
	}
	return vo, stations, nil
}

func (a *Aggregator) stationTasks(ctx context.Context, actor org.Principal, stations []*org.Station, where task.Predicate) ([]*task.Task, error) {
	ids := make([]string, len(stations))
	for i, st := range stations {
		ids[i] = st.ID
	}
	return a.tasks.List(ctx, task.And(
		actor.VisibilityPredicate(),
		task.In(task.FieldStationID, ids...),
		where,
	))
}

func (a *Aggregator) notDistributed(ctx context.Context, actor org.Principal, voID string, year int) (int, error) {
	originals, err := a.tasks.List(ctx, task.And(
		actor.VisibilityPredicate(),
		task.Eq(task.FieldOwnerType, task.OwnerVO),
		task.Eq(task.FieldVOID, voID),
		task.Eq(task.FieldYear, year),
	))
	if err != nil || len(originals) == 0 {
		return 0, err
	}
	ids := make([]string, len(originals))
	for i, t := range originals {
		ids[i] = t.ID
	}
	children, err := a.tasks.List(ctx, task.In(task.FieldParentTaskID, ids...))
	if err != nil {
		return 0, err
	}
	distributed := make(map[string]bool, len(children))
	for _, c := range children {
		distributed[c.ParentTaskID] = true
	}
	return len(originals) - len(distributed), nil
}

func matchesAny(t *task.Task, months []int) bool {
	for _, m := range months {
		if t.MatchesMonth(m) {
			return true
		}
	}
	return false
}

func checkPeriod(year, month int) error {
	if year <= 0 {
		return task.Validationf("year is required")
	}
	if month < 0 || month > 12 {
		return task.Validationf("month must be between 1 and 12, got %d", month)
	}
	return nil
}
