package service

import (
	"time"

	"github.com/thanhvo2104/admitq/internal/models"
)

// Actor distinguishes who performs an action on an entry. One engine serves
// both roles; the actor parameter keeps one state machine as the single
// source of truth instead of separate owner/participant engines.
type Actor string

const (
	ActorOwner       Actor = "owner"
	ActorParticipant Actor = "participant"
)

type JoinInput struct {
	ResourceID string          `json:"resource_id"`
	PartySize  int             `json:"party_size"`
	Identity   models.Identity `json:"identity"`
}

type JoinOutput struct {
	EntryID       string        `json:"entry_id"`
	TicketNumber  int64         `json:"ticket_number"`
	Rank          int64         `json:"rank"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

type RankOutput struct {
	Rank          int64              `json:"rank"`
	EstimatedWait time.Duration      `json:"estimated_wait"`
	Status        models.EntryStatus `json:"status"`
}

// WaitingEntry is one row of the owner-facing listing: index order joined
// with entry detail.
type WaitingEntry struct {
	Rank         int64              `json:"rank"`
	EntryID      string             `json:"entry_id"`
	TicketNumber int64              `json:"ticket_number"`
	PartySize    int                `json:"party_size"`
	Status       models.EntryStatus `json:"status"`
	QueuedAt     time.Time          `json:"queued_at"`
	CalledAt     *time.Time         `json:"called_at,omitempty"`
}

type IssueTokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
