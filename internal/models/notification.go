package models

import "time"

type EventKind string

const (
	EventPositionUpdate EventKind = "positionUpdate"
	EventCalled         EventKind = "called"
	EventNoShow         EventKind = "noShow"
	EventEntered        EventKind = "entered"
	EventCancelled      EventKind = "cancelled"

	// EventQueueChanged is the owner-facing fan-out emitted whenever the
	// composition of a resource's queue changes.
	EventQueueChanged EventKind = "queueChanged"
)

// NotificationEvent is one message on an entry's (or a resource watcher's)
// push channel.
type NotificationEvent struct {
	Kind          EventKind     `json:"kind"`
	EntryID       string        `json:"entry_id,omitempty"`
	ResourceID    string        `json:"resource_id"`
	TicketNumber  int64         `json:"ticket_number,omitempty"`
	Position      int64         `json:"position,omitempty"`
	EstimatedWait time.Duration `json:"estimated_wait,omitempty"`
	Status        EntryStatus   `json:"status,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
