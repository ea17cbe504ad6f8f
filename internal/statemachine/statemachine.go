// Package statemachine holds the lifecycle rules for a queue entry. Every
// status change in the engine goes through Apply so the transition table is
// the single authority on what an entry may do next.
package statemachine

import (
	"time"

	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
)

// transitions maps each state to the set of states it may move to.
// Terminal states have no outgoing edges.
var transitions = map[models.EntryStatus]map[models.EntryStatus]bool{
	models.EntryStatusWaiting: {
		models.EntryStatusCalled:        true,
		models.EntryStatusEntered:       true,
		models.EntryStatusOwnerCanceled: true,
		models.EntryStatusUserCanceled:  true,
	},
	models.EntryStatusCalled: {
		models.EntryStatusConfirmed:     true,
		models.EntryStatusEntered:       true,
		models.EntryStatusOwnerCanceled: true,
		models.EntryStatusUserCanceled:  true,
		models.EntryStatusNoShow:        true,
	},
	models.EntryStatusConfirmed: {
		models.EntryStatusEntered:       true,
		models.EntryStatusOwnerCanceled: true,
		models.EntryStatusUserCanceled:  true,
		models.EntryStatusNoShow:        true,
	},
	models.EntryStatusEntered:       {},
	models.EntryStatusOwnerCanceled: {},
	models.EntryStatusUserCanceled:  {},
	models.EntryStatusNoShow:        {},
}

func CanTransition(from, to models.EntryStatus) bool {
	return transitions[from][to]
}

func IsTerminal(s models.EntryStatus) bool {
	allowed, known := transitions[s]
	return known && len(allowed) == 0
}

// Apply moves the entry to the requested state, stamping calledAt on the
// call-forward and resolvedAt on any terminal transition. Timestamps are
// written once and never rewritten. An illegal request fails with an
// InvalidTransitionError and leaves the entry untouched.
func Apply(e *models.QueueEntry, to models.EntryStatus, now time.Time) error {
	if !CanTransition(e.Status, to) {
		return &domainErr.InvalidTransitionError{From: e.Status, To: to}
	}

	e.Status = to
	e.UpdatedAt = now

	if to == models.EntryStatusCalled && e.CalledAt == nil {
		t := now
		e.CalledAt = &t
	}
	if IsTerminal(to) && e.ResolvedAt == nil {
		t := now
		e.ResolvedAt = &t
	}

	return nil
}
