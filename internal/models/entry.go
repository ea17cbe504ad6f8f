package models

import (
	"errors"
	"time"
)

// ErrMalformedIdentity rejects identities that are not exactly one of a
// member reference or a (name, contact) pair.
var ErrMalformedIdentity = errors.New("identity must be exactly one of member id or name+contact")

type EntryStatus string

const (
	EntryStatusWaiting       EntryStatus = "waiting"
	EntryStatusCalled        EntryStatus = "called"
	EntryStatusConfirmed     EntryStatus = "confirmed"
	EntryStatusEntered       EntryStatus = "entered"
	EntryStatusOwnerCanceled EntryStatus = "owner_canceled"
	EntryStatusUserCanceled  EntryStatus = "user_canceled"
	EntryStatusNoShow        EntryStatus = "no_show"
)

type IdentityKind string

const (
	IdentityKindMember    IdentityKind = "member"
	IdentityKindNonMember IdentityKind = "non_member"
)

// Identity is the participant behind a queue entry: either a member
// reference or a non-member (name, contact) pair, never both.
type Identity struct {
	Kind     IdentityKind `json:"kind"`
	MemberID string       `json:"member_id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Contact  string       `json:"contact,omitempty"`
}

func (i Identity) Validate() error {
	switch i.Kind {
	case IdentityKindMember:
		if i.MemberID == "" || i.Name != "" || i.Contact != "" {
			return ErrMalformedIdentity
		}
	case IdentityKindNonMember:
		if i.MemberID != "" || i.Name == "" || i.Contact == "" {
			return ErrMalformedIdentity
		}
	default:
		return ErrMalformedIdentity
	}
	return nil
}

// Matches reports whether the caller-presented identity is the same
// participant that created the entry.
func (i Identity) Matches(other Identity) bool {
	if i.Kind != other.Kind {
		return false
	}
	if i.Kind == IdentityKindMember {
		return i.MemberID == other.MemberID
	}
	return i.Name == other.Name && i.Contact == other.Contact
}

type QueueEntry struct {
	ID           string      `json:"id"`
	ResourceID   string      `json:"resource_id"`
	TicketNumber int64       `json:"ticket_number"`
	PartySize    int         `json:"party_size"`
	Identity     Identity    `json:"identity"`
	Status       EntryStatus `json:"status"`
	QueuedAt     time.Time   `json:"queued_at"`
	CalledAt     *time.Time  `json:"called_at,omitempty"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`

	// Version guards concurrent updates: an owner action and a no-show
	// timer firing on the same entry cannot both commit.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *QueueEntry) IsTerminal() bool {
	return e.Status == EntryStatusEntered ||
		e.Status == EntryStatusOwnerCanceled ||
		e.Status == EntryStatusUserCanceled ||
		e.Status == EntryStatusNoShow
}

// InQueue reports whether the entry still occupies a slot in the ordered
// index (waiting or called-but-unresolved limbo).
func (e *QueueEntry) InQueue() bool {
	return e.Status == EntryStatusWaiting ||
		e.Status == EntryStatusCalled ||
		e.Status == EntryStatusConfirmed
}
