package task

import (
	"reflect"
	"testing"
)

func TestSQL_Rendering(t *testing.T) {
	tests := []struct {
		name     string
		p        Predicate
		wantSQL  string
		wantArgs []any
	}{
		{"all", All(), "1=1", nil},
		{"nil", nil, "1=1", nil},
		{"none", None(), "1=0", nil},
		{"eq", Eq(FieldVOID, "vo-1"), "vo_id = ?", []any{"vo-1"}},
		{"eq status", Eq(FieldStatus, StatusDone), "status = ?", []any{"done"}},
		{"eq empty", Eq(FieldVOID, ""), "1=0", nil},
		{"in", In(FieldStationID, "a", "b"), "station_id IN (?, ?)", []any{"a", "b"}},
		{"in single", In(FieldStationID, "a"), "station_id = ?", []any{"a"}},
		{"in empty", In(FieldStationID), "1=0", nil},
		{"null", IsNull(FieldParentTaskID), "parent_task_id IS NULL", nil},
		{
			"and or",
			And(Eq(FieldYear, 2026), Or(Eq(FieldVOID, "v"), Eq(FieldCreatedBy, "u"))),
			"(year = ? AND (vo_id = ? OR created_by = ?))",
			[]any{2026, "v", "u"},
		},
		{"and drops all", And(All(), Eq(FieldVOID, "v")), "vo_id = ?", []any{"v"}},
		{"and with none", And(Eq(FieldVOID, "v"), None()), "1=0", nil},
		{"or with all", Or(Eq(FieldVOID, "v"), All()), "1=1", nil},
		{"or drops none", Or(None(), Eq(FieldVOID, "v")), "vo_id = ?", []any{"v"}},
		{
			"month",
			InMonth(4),
			"(is_recurring_monthly = ? OR (start_month IS NOT NULL AND start_month <= ? AND COALESCE(end_month, start_month) >= ?))",
			[]any{true, 4, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := SQL(tt.p)
			if gotSQL != tt.wantSQL {
				t.Errorf("SQL = %q, want %q", gotSQL, tt.wantSQL)
			}
			if !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", gotArgs, tt.wantArgs)
			}
		})
	}
}

func TestMatchesMonth(t *testing.T) {
	tests := []struct {
		name  string
		task  Task
		month int
		want  bool
	}{
		{"recurring ignores months", Task{RecurringMonthly: true, StartMonth: intp(2)}, 9, true},
		{"no months", Task{}, 1, false},
		{"single month hit", Task{StartMonth: intp(5)}, 5, true},
		{"single month miss", Task{StartMonth: intp(5)}, 6, false},
		{"range lower bound", Task{StartMonth: intp(3), EndMonth: intp(7)}, 3, true},
		{"range upper bound", Task{StartMonth: intp(3), EndMonth: intp(7)}, 7, true},
		{"range outside", Task{StartMonth: intp(3), EndMonth: intp(7)}, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.MatchesMonth(tt.month); got != tt.want {
				t.Errorf("MatchesMonth(%d) = %v, want %v", tt.month, got, tt.want)
			}
			if got := InMonth(tt.month).Match(&tt.task); got != tt.want {
				t.Errorf("InMonth(%d).Match = %v, want %v", tt.month, got, tt.want)
			}
		})
	}
}

func TestEq_EmptyFieldNeverMatches(t *testing.T) {
	task := &Task{OwnerType: OwnerVO, VOID: "v"}
	if Eq(FieldStationID, "s").Match(task) {
		t.Error("unset station_id must not match")
	}
	if !IsNull(FieldStationID).Match(task) {
		t.Error("IsNull(station_id) should match unset field")
	}
	if NotNull(FieldStationID).Match(task) {
		t.Error("NotNull(station_id) should not match unset field")
	}
}

func TestFilter_Predicate(t *testing.T) {
	f := Filter{Year: 2026, Month: 3, Status: StatusDone, StationID: "st-1"}
	match := &Task{Year: 2026, StartMonth: intp(1), EndMonth: intp(4), Status: StatusDone, StationID: "st-1"}
	miss := &Task{Year: 2026, StartMonth: intp(5), Status: StatusDone, StationID: "st-1"}

	p := f.Predicate()
	if !p.Match(match) {
		t.Error("expected match")
	}
	if p.Match(miss) {
		t.Error("expected miss for task outside month")
	}
	if sql, _ := SQL(Filter{}.Predicate()); sql != "1=1" {
		t.Errorf("empty filter SQL = %q, want 1=1", sql)
	}
}

func TestFilter_Validate(t *testing.T) {
	if err := (Filter{Month: 13}).Validate(); err == nil {
		t.Error("expected error for month 13")
	}
	if err := (Filter{Status: "archived"}).Validate(); err == nil {
		t.Error("expected error for unknown status")
	}
	if err := (Filter{Year: 2026, Month: 12, Status: StatusReported}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
