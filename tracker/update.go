package tracker

import (
	"context"
	"log/slog"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

// Update is a partial task update. Nil fields are left unchanged.
type Update struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Status      *task.Status `json:"status,omitempty"`
	AssignedTo  *string      `json:"assigned_to,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
	DeadlineDay *int         `json:"deadline_day,omitempty"`
	VOReviewed  *bool        `json:"vo_reviewed,omitempty"`
	VOComment   *string      `json:"vo_comment,omitempty"`
}

func (u Update) editsFields() bool {
	return u.Title != nil || u.Description != nil || u.Category != nil ||
		u.Status != nil || u.AssignedTo != nil || u.Notes != nil || u.DeadlineDay != nil
}

func (u Update) editsReview() bool {
	return u.VOReviewed != nil || u.VOComment != nil
}

// UpdateTask applies u to task id. Status changes follow the lifecycle
// rules. Review fields from an actor without review rights are dropped
// before any permission check, so a review-only request from such an actor
// returns the task unchanged.
func (s *Service) UpdateTask(ctx context.Context, actor org.Principal, id string, u Update) (*task.Task, error) {
	t, err := s.GetTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	canEdit, canReview := actor.CanEdit(t), actor.CanReview(t)
	if u.editsReview() && !canReview {
		s.logger.Debug("review fields ignored",
			slog.String("task_id", id),
			slog.String("actor", actor.ID),
		)
		u.VOReviewed, u.VOComment = nil, nil
	}
	if u.editsFields() && !canEdit {
		return nil, task.Forbiddenf("not allowed to edit task %s", id)
	}

	now := s.now()
	var (
		statusChanged bool
		reviewChanged bool
		fieldsChanged bool
	)
	from := t.Status

	if u.Status != nil {
		if statusChanged, err = task.SetStatus(t, *u.Status, actor.ID, now); err != nil {
			return nil, err
		}
	}
	fieldsChanged = setString(&t.Title, u.Title) || fieldsChanged
	fieldsChanged = setString(&t.Description, u.Description) || fieldsChanged
	fieldsChanged = setString(&t.Category, u.Category) || fieldsChanged
	fieldsChanged = setString(&t.AssignedTo, u.AssignedTo) || fieldsChanged
	fieldsChanged = setString(&t.Notes, u.Notes) || fieldsChanged
	if u.DeadlineDay != nil && *u.DeadlineDay != t.DeadlineDay {
		t.DeadlineDay = *u.DeadlineDay
		fieldsChanged = true
	}

	if u.VOReviewed != nil {
		reviewChanged = task.SetReviewed(t, *u.VOReviewed, actor.ID, now)
	}
	if u.VOComment != nil {
		reviewChanged = task.SetReviewComment(t, *u.VOComment) || reviewChanged
	}

	if !statusChanged && !reviewChanged && !fieldsChanged {
		return t, nil
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}

	if statusChanged {
		s.publish(ctx, activity.TypeStatusChanged, t, actor, map[string]string{
			"from": string(from),
			"to":   string(t.Status),
		})
	}
	if reviewChanged {
		meta := map[string]string{"reviewed": "false"}
		if t.VOReviewed {
			meta["reviewed"] = "true"
		}
		s.publish(ctx, activity.TypeReviewChanged, t, actor, meta)
	}
	if fieldsChanged {
		s.publish(ctx, activity.TypeTaskUpdated, t, actor, nil)
	}
	return t, nil
}

func setString(dst *string, v *string) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}
