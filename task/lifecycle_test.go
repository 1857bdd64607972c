package task

import (
	"errors"
	"testing"
	"time"
)

func TestSetStatus_CompletionStamp(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	task := &Task{Status: StatusNotStarted}

	changed, err := SetStatus(task, StatusDone, "u-1", now)
	if err != nil || !changed {
		t.Fatalf("SetStatus(done) = %v, %v", changed, err)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(now) || task.CompletedBy != "u-1" {
		t.Fatalf("completion stamp = %v/%q", task.CompletedAt, task.CompletedBy)
	}

	if _, err := SetStatus(task, StatusInProgress, "u-2", now.Add(time.Hour)); err != nil {
		t.Fatalf("SetStatus(in_progress): %v", err)
	}
	if task.CompletedAt != nil || task.CompletedBy != "" {
		t.Errorf("leaving done must clear stamp, got %v/%q", task.CompletedAt, task.CompletedBy)
	}
}

func TestSetStatus_Transitions(t *testing.T) {
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := stamp.Add(24 * time.Hour)

	tests := []struct {
		name      string
		from, to  Status
		wantStamp bool
	}{
		{"not_started to in_progress", StatusNotStarted, StatusInProgress, false},
		{"in_progress to done", StatusInProgress, StatusDone, true},
		{"reported to done", StatusReported, StatusDone, true},
		{"done to reported", StatusDone, StatusReported, false},
		{"done to not_started", StatusDone, StatusNotStarted, false},
		{"not_started to reported", StatusNotStarted, StatusReported, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Status: tt.from}
			if tt.from == StatusDone {
				task.CompletedAt = &stamp
				task.CompletedBy = "earlier"
			}
			if _, err := SetStatus(task, tt.to, "actor", now); err != nil {
				t.Fatalf("SetStatus: %v", err)
			}
			if task.Status != tt.to {
				t.Errorf("Status = %q, want %q", task.Status, tt.to)
			}
			if got := task.CompletedAt != nil; got != tt.wantStamp {
				t.Errorf("CompletedAt set = %v, want %v", got, tt.wantStamp)
			}
			if (task.CompletedBy != "") != tt.wantStamp {
				t.Errorf("CompletedBy = %q, want set=%v", task.CompletedBy, tt.wantStamp)
			}
		})
	}
}

func TestSetStatus_SameStatusKeepsStamp(t *testing.T) {
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{Status: StatusDone, CompletedAt: &stamp, CompletedBy: "first"}

	changed, err := SetStatus(task, StatusDone, "second", stamp.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if changed {
		t.Error("expected no change")
	}
	if !task.CompletedAt.Equal(stamp) || task.CompletedBy != "first" {
		t.Errorf("stamp rewritten: %v/%q", task.CompletedAt, task.CompletedBy)
	}
}

func TestSetStatus_Unknown(t *testing.T) {
	task := &Task{Status: StatusNotStarted}
	_, err := SetStatus(task, "archived", "u", time.Now())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if task.Status != StatusNotStarted {
		t.Errorf("status changed to %q", task.Status)
	}
}

func TestSetReviewed(t *testing.T) {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	task := &Task{OwnerType: OwnerStation, Status: StatusDone}
	if !NeedsReview(task) {
		t.Fatal("done station task should need review")
	}

	SetReviewed(task, true, "chief", now)
	if !task.VOReviewed || task.VOReviewedAt == nil || task.VOReviewedBy != "chief" {
		t.Fatalf("review stamp = %v %v %q", task.VOReviewed, task.VOReviewedAt, task.VOReviewedBy)
	}
	if NeedsReview(task) {
		t.Error("reviewed task should not need review")
	}

	SetReviewed(task, false, "chief", now)
	if task.VOReviewed || task.VOReviewedAt != nil || task.VOReviewedBy != "" {
		t.Errorf("unreview must clear stamp, got %v %v %q", task.VOReviewed, task.VOReviewedAt, task.VOReviewedBy)
	}
}

func TestTask_Validate(t *testing.T) {
	valid := func() *Task {
		return &Task{ID: "t", Title: "x", Year: 2026, OwnerType: OwnerVO, VOID: "v", Status: StatusNotStarted, CreatedBy: "u"}
	}
	tests := []struct {
		name   string
		mutate func(*Task)
		ok     bool
	}{
		{"valid", func(*Task) {}, true},
		{"missing title", func(t *Task) { t.Title = "" }, false},
		{"vo without vo_id", func(t *Task) { t.VOID = "" }, false},
		{"end before start", func(t *Task) { t.StartMonth, t.EndMonth = intp(5), intp(2) }, false},
		{"end without start", func(t *Task) { t.EndMonth = intp(2) }, false},
		{"month 13", func(t *Task) { t.StartMonth = intp(13) }, false},
		{"deadline 32", func(t *Task) { t.DeadlineDay = 32 }, false},
		{"self parent", func(t *Task) {
			t.OwnerType, t.StationID, t.ParentTaskID = OwnerStation, "s", "t"
		}, false},
		{"parent on vo task", func(t *Task) { t.ParentTaskID = "p" }, false},
		{"station child", func(t *Task) {
			t.OwnerType, t.StationID, t.ParentTaskID = OwnerStation, "s", "p"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := valid()
			tt.mutate(task)
			err := task.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}
