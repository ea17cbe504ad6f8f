package kafka

import "time"

// Events published by the admission engine. Keyed by resource_id so one
// resource's lifecycle stays ordered within a partition.

type EntryJoinedEvent struct {
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	TicketNumber int64     `json:"ticket_number"`
	PartySize    int       `json:"party_size"`
	Position     int64     `json:"position"`
	JoinedAt     time.Time `json:"joined_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type EntryCalledEvent struct {
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	TicketNumber int64     `json:"ticket_number"`
	CalledAt     time.Time `json:"called_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type EntryEnteredEvent struct {
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	TicketNumber int64     `json:"ticket_number"`
	EnteredAt    time.Time `json:"entered_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type EntryCancelledEvent struct {
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	TicketNumber int64     `json:"ticket_number"`
	Actor        string    `json:"actor"` // owner, participant
	CancelledAt  time.Time `json:"cancelled_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type EntryNoShowEvent struct {
	EntryID      string    `json:"entry_id"`
	ResourceID   string    `json:"resource_id"`
	TicketNumber int64     `json:"ticket_number"`
	ExpiredAt    time.Time `json:"expired_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// Topic names
const (
	TopicEntryJoined    = "ADMISSION_JOINED"
	TopicEntryCalled    = "ADMISSION_CALLED"
	TopicEntryEntered   = "ADMISSION_ENTERED"
	TopicEntryCancelled = "ADMISSION_CANCELLED"
	TopicEntryNoShow    = "ADMISSION_NO_SHOW"
)
