package task

import "time"

// SetStatus moves t to status to on behalf of actorID. Any state may move to
// any other state; only the completion stamp is attached to transitions:
// entering done stamps completed_at/completed_by, leaving done clears them.
// It reports whether the status actually changed.
func SetStatus(t *Task, to Status, actorID string, now time.Time) (bool, error) {
	if !to.Valid() {
		return false, Validationf("unknown status %q", to)
	}
	from := t.Status
	if from == to {
		return false, nil
	}
	switch {
	case to == StatusDone:
		at := now.UTC()
		t.CompletedAt = &at
		t.CompletedBy = actorID
	case from == StatusDone:
		t.CompletedAt = nil
		t.CompletedBy = ""
	}
	t.Status = to
	return true, nil
}

// SetReviewed sets the VO review flag. Marking a task reviewed stamps
// vo_reviewed_at/vo_reviewed_by; unmarking clears both. Permission checks are
// the caller's responsibility.
func SetReviewed(t *Task, reviewed bool, actorID string, now time.Time) bool {
	if t.VOReviewed == reviewed {
		return false
	}
	t.VOReviewed = reviewed
	if reviewed {
		at := now.UTC()
		t.VOReviewedAt = &at
		t.VOReviewedBy = actorID
	} else {
		t.VOReviewedAt = nil
		t.VOReviewedBy = ""
	}
	return true
}

// NeedsReview reports whether t is a station task marked done that the VO
// has not yet reviewed.
func NeedsReview(t *Task) bool {
	return t.OwnerType == OwnerStation && t.Status == StatusDone && !t.VOReviewed
}

// SetReviewComment replaces the VO comment. The comment is independent of
// the review flag.
func SetReviewComment(t *Task, comment string) bool {
	if t.VOComment == comment {
		return false
	}
	t.VOComment = comment
	return true
}
