// Package activity records task events (creation, distribution, status and
// review changes) on an in-process bus with a bounded history.
package activity

import (
	"context"
	"time"
)

// EventType identifies what happened to a task.
type EventType string

const (
	TypeTaskCreated     EventType = "task_created"
	TypeTaskDistributed EventType = "task_distributed" // VO task fanned out to stations
	TypeStatusChanged   EventType = "status_changed"
	TypeReviewChanged   EventType = "review_changed"
	TypeTaskUpdated     EventType = "task_updated" // plain field edits
	TypeTaskDeleted     EventType = "task_deleted"
)

// Event describes one change to a task.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	TaskID    string            `json:"task_id"`
	VOID      string            `json:"vo_id,omitempty"`
	StationID string            `json:"station_id,omitempty"`
	Actor     string            `json:"actor"`
	Summary   string            `json:"summary,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes published events.
type Handler func(ctx context.Context, ev *Event) error

// Bus carries task events to in-process subscribers and keeps a history.
type Bus interface {
	// Publish records ev and hands it to the subscribers of its type.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for events of type t; an empty t
	// subscribes to every type. Returns an unsubscribe function.
	Subscribe(t EventType, handler Handler) (unsubscribe func())

	// History returns up to limit recent events of voID in chronological
	// order. An empty voID returns events of every VO.
	History(voID string, limit int) ([]*Event, error)
}
