package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/db"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

var (
	admin   = org.Principal{ID: "admin", Role: org.RoleAdmin}
	chief   = org.Principal{ID: "chief-1", Role: org.RoleVOChief, VOID: "V1"}
	manager = org.Principal{ID: "mgr-1", Role: org.RoleStationManager, VOID: "V1", StationIDs: []string{"S1"}}
	other   = org.Principal{ID: "mgr-9", Role: org.RoleStationManager, VOID: "V2", StationIDs: []string{"S9"}}
)

var fixedNow = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	tasks *task.SQLiteStore
	bus   *activity.InMemoryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ts, err := task.NewSQLiteStore(ctx, conn)
	if err != nil {
		t.Fatalf("task store: %v", err)
	}
	orgs, err := org.NewSQLiteStore(ctx, conn)
	if err != nil {
		t.Fatalf("org store: %v", err)
	}
	_, err = org.Seed(ctx, orgs, []org.SeedVO{
		{ID: "V1", Name: "Norr", Stations: []org.SeedStation{{ID: "S1", Name: "Umeå"}, {ID: "S2", Name: "Luleå"}}},
		{ID: "V2", Name: "Syd", Stations: []org.SeedStation{{ID: "S9", Name: "Malmö"}}},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	bus := activity.NewInMemoryBus()
	svc := NewService(ts, orgs, nil)
	svc.SetBus(bus)
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, tasks: ts, bus: bus}
}

func (f *fixture) mustCreate(t *testing.T, actor org.Principal, in NewTask) *task.Task {
	t.Helper()
	tk, err := f.svc.CreateTask(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("CreateTask %q: %v", in.Title, err)
	}
	return tk
}

func ptr[T any](v T) *T { return &v }

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.mustCreate(t, manager, NewTask{Title: "Städning", OwnerType: task.OwnerStation, StationID: "S1"})
	if st.VOID != "V1" {
		t.Errorf("station task VOID = %q, want inherited V1", st.VOID)
	}
	if st.Year != 2026 || st.Status != task.StatusNotStarted || st.CreatedBy != manager.ID {
		t.Errorf("defaults = %d/%s/%s", st.Year, st.Status, st.CreatedBy)
	}

	personal := f.mustCreate(t, manager, NewTask{Title: "Egen", OwnerType: task.OwnerPersonal, VOID: "V2", StationID: "S9"})
	if personal.VOID != "" || personal.StationID != "" {
		t.Errorf("personal task anchored to %q/%q, want none", personal.VOID, personal.StationID)
	}

	tests := []struct {
		name  string
		actor org.Principal
		in    NewTask
		want  error
	}{
		{"manager vo task", manager, NewTask{Title: "x", OwnerType: task.OwnerVO, VOID: "V1"}, task.ErrForbidden},
		{"manager foreign station", manager, NewTask{Title: "x", OwnerType: task.OwnerStation, StationID: "S2"}, task.ErrForbidden},
		{"chief foreign vo", chief, NewTask{Title: "x", OwnerType: task.OwnerVO, VOID: "V2"}, task.ErrForbidden},
		{"unknown station", admin, NewTask{Title: "x", OwnerType: task.OwnerStation, StationID: "nope"}, task.ErrValidation},
		{"unknown vo", admin, NewTask{Title: "x", OwnerType: task.OwnerVO, VOID: "nope"}, task.ErrValidation},
		{"missing title", chief, NewTask{OwnerType: task.OwnerVO, VOID: "V1"}, task.ErrValidation},
		{"bad owner", chief, NewTask{Title: "x", OwnerType: "team"}, task.ErrValidation},
		{"bad months", chief, NewTask{Title: "x", OwnerType: task.OwnerVO, VOID: "V1", StartMonth: ptr(5), EndMonth: ptr(2)}, task.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateTask(ctx, tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.CreateTask(ctx, chief, NewTask{Title: "VO", OwnerType: task.OwnerVO, VOID: "V1"}); err != nil {
		t.Errorf("chief own VO task: %v", err)
	}
}

func TestGetTask_InvisibleIsNotFound(t *testing.T) {
	f := newFixture(t)
	tk := f.mustCreate(t, manager, NewTask{Title: "S1", OwnerType: task.OwnerStation, StationID: "S1"})

	if _, err := f.svc.GetTask(context.Background(), other, tk.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.GetTask(context.Background(), chief, tk.ID); err != nil {
		t.Fatalf("chief GetTask: %v", err)
	}
}

func TestUpdateTask_ReviewGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.mustCreate(t, manager, NewTask{Title: "S1", OwnerType: task.OwnerStation, StationID: "S1"})

	got, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{VOReviewed: ptr(true), VOComment: ptr("bra")})
	if err != nil {
		t.Fatalf("manager UpdateTask: %v", err)
	}
	if got.VOReviewed || got.VOComment != "" {
		t.Errorf("manager review applied: %+v", got)
	}
	stored, _ := f.tasks.Get(ctx, tk.ID)
	if stored.VOReviewed || stored.VOReviewedAt != nil {
		t.Errorf("stored review = %v/%v, want untouched", stored.VOReviewed, stored.VOReviewedAt)
	}

	got, err = f.svc.UpdateTask(ctx, chief, tk.ID, Update{VOReviewed: ptr(true), VOComment: ptr("bra")})
	if err != nil {
		t.Fatalf("chief UpdateTask: %v", err)
	}
	if !got.VOReviewed || got.VOReviewedBy != chief.ID || got.VOReviewedAt == nil || got.VOComment != "bra" {
		t.Errorf("chief review = %+v", got)
	}

	got, err = f.svc.UpdateTask(ctx, chief, tk.ID, Update{VOReviewed: ptr(false)})
	if err != nil {
		t.Fatalf("chief unreview: %v", err)
	}
	if got.VOReviewed || got.VOReviewedAt != nil || got.VOReviewedBy != "" {
		t.Errorf("unreview left stamps: %+v", got)
	}
	if got.VOComment != "bra" {
		t.Errorf("comment = %q, want kept", got.VOComment)
	}

	// Tasks the manager sees through the VO but cannot edit: review-only
	// requests are no-ops, not rejections.
	voTask := f.mustCreate(t, chief, NewTask{Title: "VO", OwnerType: task.OwnerVO, VOID: "V1"})
	s2 := f.mustCreate(t, chief, NewTask{Title: "S2", OwnerType: task.OwnerStation, StationID: "S2"})
	for _, tk := range []*task.Task{voTask, s2} {
		if !manager.CanSee(tk) || manager.CanEdit(tk) {
			t.Fatalf("%s: want visible but not editable for manager", tk.Title)
		}
		got, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{VOReviewed: ptr(true), VOComment: ptr("x")})
		if err != nil {
			t.Errorf("%s: review-only update should be ignored, got %v", tk.Title, err)
			continue
		}
		if got.VOReviewed || got.VOComment != "" {
			t.Errorf("%s: review applied: %+v", tk.Title, got)
		}
		stored, _ := f.tasks.Get(ctx, tk.ID)
		if stored.VOReviewed || stored.VOReviewedBy != "" {
			t.Errorf("%s: stored review = %v/%q, want untouched", tk.Title, stored.VOReviewed, stored.VOReviewedBy)
		}
		// Mixed with a field the manager cannot edit, the request is refused.
		if _, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{VOReviewed: ptr(true), Notes: ptr("x")}); !errors.Is(err, task.ErrForbidden) {
			t.Errorf("%s: mixed update: expected ErrForbidden, got %v", tk.Title, err)
		}
	}
}

func TestUpdateTask_CompletionStamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.mustCreate(t, manager, NewTask{Title: "S1", OwnerType: task.OwnerStation, StationID: "S1"})

	got, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{Status: ptr(task.StatusDone)})
	if err != nil {
		t.Fatalf("UpdateTask done: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) || got.CompletedBy != manager.ID {
		t.Errorf("completion = %v/%q", got.CompletedAt, got.CompletedBy)
	}

	got, err = f.svc.UpdateTask(ctx, manager, tk.ID, Update{Status: ptr(task.StatusInProgress)})
	if err != nil {
		t.Fatalf("UpdateTask in_progress: %v", err)
	}
	stored, _ := f.tasks.Get(ctx, got.ID)
	if stored.CompletedAt != nil || stored.CompletedBy != "" {
		t.Errorf("completion not cleared: %v/%q", stored.CompletedAt, stored.CompletedBy)
	}

	if _, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{Status: ptr(task.Status("archived"))}); !errors.Is(err, task.ErrValidation) {
		t.Errorf("unknown status: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{DeadlineDay: ptr(40)}); !errors.Is(err, task.ErrValidation) {
		t.Errorf("deadline 40: expected ErrValidation, got %v", err)
	}
}

func TestUpdateTask_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s2 := f.mustCreate(t, admin, NewTask{Title: "S2", OwnerType: task.OwnerStation, StationID: "S2"})
	voTask := f.mustCreate(t, chief, NewTask{Title: "VO", OwnerType: task.OwnerVO, VOID: "V1"})

	// Visible through the VO but not the manager's station.
	if _, err := f.svc.UpdateTask(ctx, manager, s2.ID, Update{Notes: ptr("x")}); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("foreign station: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.UpdateTask(ctx, manager, voTask.ID, Update{Status: ptr(task.StatusDone)}); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("vo task: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.UpdateTask(ctx, other, s2.ID, Update{Notes: ptr("x")}); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("invisible: expected ErrNotFound, got %v", err)
	}

	assigned, err := f.svc.UpdateTask(ctx, chief, s2.ID, Update{AssignedTo: ptr(manager.ID)})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedTo != manager.ID {
		t.Fatalf("AssignedTo = %q", assigned.AssignedTo)
	}
	if _, err := f.svc.UpdateTask(ctx, manager, s2.ID, Update{Notes: ptr("klart")}); err != nil {
		t.Errorf("assignee should be able to edit: %v", err)
	}
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustCreate(t, manager, NewTask{Title: "S1 mars", OwnerType: task.OwnerStation, StationID: "S1", StartMonth: ptr(3)})
	f.mustCreate(t, manager, NewTask{Title: "S1 monthly", OwnerType: task.OwnerStation, StationID: "S1", RecurringMonthly: true})
	f.mustCreate(t, other, NewTask{Title: "S9", OwnerType: task.OwnerStation, StationID: "S9", RecurringMonthly: true})
	f.mustCreate(t, other, NewTask{Title: "private", OwnerType: task.OwnerPersonal})

	tests := []struct {
		name   string
		actor  org.Principal
		filter task.Filter
		want   int
	}{
		{"manager all", manager, task.Filter{}, 2},
		{"manager march", manager, task.Filter{Month: 3}, 2},
		{"manager june", manager, task.Filter{Month: 6}, 1},
		{"other all", other, task.Filter{}, 2},
		{"chief", chief, task.Filter{}, 2},
		{"admin", admin, task.Filter{}, 4},
		{"admin personal", admin, task.Filter{OwnerType: task.OwnerPersonal}, 1},
		{"admin year", admin, task.Filter{Year: 2025}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListTasks(ctx, tt.actor, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d tasks, want %d", len(got), tt.want)
			}
			for _, tk := range got {
				if !tt.actor.CanSee(tk) {
					t.Errorf("listed invisible task %q", tk.Title)
				}
			}
		})
	}

	if _, err := f.svc.ListTasks(ctx, admin, task.Filter{Month: 13}); !errors.Is(err, task.ErrValidation) {
		t.Errorf("month 13: expected ErrValidation, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	voTask := f.mustCreate(t, chief, NewTask{Title: "VO", OwnerType: task.OwnerVO, VOID: "V1"})
	child := &task.Task{Title: "VO", Year: 2026, OwnerType: task.OwnerStation, VOID: "V1",
		StationID: "S1", ParentTaskID: voTask.ID, CreatedBy: chief.ID}
	if err := f.tasks.CreateBatch(ctx, []*task.Task{child}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if err := f.svc.DeleteTask(ctx, manager, child.ID); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("manager deleting distributed copy: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteTask(ctx, chief, voTask.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := f.tasks.Get(ctx, child.ID); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("child survived parent deletion: %v", err)
	}
	if err := f.svc.DeleteTask(ctx, chief, voTask.ID); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.mustCreate(t, manager, NewTask{Title: "S1", OwnerType: task.OwnerStation, StationID: "S1"})
	if _, err := f.svc.UpdateTask(ctx, manager, tk.ID, Update{Status: ptr(task.StatusDone), Notes: ptr("ok")}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	f.mustCreate(t, other, NewTask{Title: "S9", OwnerType: task.OwnerStation, StationID: "S9"})

	evs, err := f.svc.Activity(chief, 0)
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	var types []activity.EventType
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	want := []activity.EventType{activity.TypeTaskCreated, activity.TypeStatusChanged, activity.TypeTaskUpdated}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types = %v, want %v", types, want)
			break
		}
	}
	if evs[1].Metadata["to"] != "done" {
		t.Errorf("status event metadata = %v", evs[1].Metadata)
	}

	all, _ := f.svc.Activity(admin, 0)
	if len(all) != 4 {
		t.Errorf("admin activity = %d events, want 4", len(all))
	}
}

func TestOrgManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.CreateVO(ctx, chief, &org.VO{Name: "Väst"}); !errors.Is(err, task.ErrForbidden) {
		t.Errorf("chief CreateVO: expected ErrForbidden, got %v", err)
	}
	vo := &org.VO{Name: "Väst"}
	if err := f.svc.CreateVO(ctx, admin, vo); err != nil {
		t.Fatalf("CreateVO: %v", err)
	}
	if err := f.svc.CreateStation(ctx, admin, vo.ID, &org.Station{Name: "Göteborg"}); err != nil {
		t.Fatalf("CreateStation: %v", err)
	}

	vos, _ := f.svc.ListVOs(ctx, admin)
	if len(vos) != 3 {
		t.Errorf("admin VOs = %d, want 3", len(vos))
	}
	vos, _ = f.svc.ListVOs(ctx, chief)
	if len(vos) != 1 || vos[0].ID != "V1" {
		t.Errorf("chief VOs = %v, want [V1]", vos)
	}

	stations, err := f.svc.ListStations(ctx, other, "V1")
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if len(stations) != 0 {
		t.Errorf("outsider sees %d stations of V1", len(stations))
	}
	stations, _ = f.svc.ListStations(ctx, manager, "V1")
	if len(stations) != 2 {
		t.Errorf("manager sees %d stations of own VO, want 2", len(stations))
	}
}
