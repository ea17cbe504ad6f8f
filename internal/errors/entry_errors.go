package errors

import (
	"errors"
	"fmt"

	"github.com/thanhvo2104/admitq/internal/models"
)

var (
	ErrEntryNotFound    = errors.New("queue entry not found")
	ErrPermissionDenied = errors.New("caller identity does not match entry")
	ErrVersionConflict  = errors.New("entry was modified concurrently")
)

// InvalidTransitionError names both the current and the requested state so
// callers can see exactly which lifecycle rule they violated.
type InvalidTransitionError struct {
	From models.EntryStatus
	To   models.EntryStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
