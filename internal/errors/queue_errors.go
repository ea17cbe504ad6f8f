package errors

import "errors"

var (
	ErrResourceNotFound       = errors.New("resource not found")
	ErrAdmissionClosed        = errors.New("admission is closed for this resource")
	ErrAdmissionAlreadyOpen   = errors.New("admission is already open")
	ErrAdmissionAlreadyClosed = errors.New("admission is already closed")
	ErrPartySizeOutOfRange    = errors.New("party size violates resource policy")

	ErrLockBusy = errors.New("resource is busy, try again")

	ErrTokenActive   = errors.New("an active admission token already exists")
	ErrTokenNotFound = errors.New("admission token not found or already consumed")
	ErrTokenInvalid  = errors.New("admission token is invalid")
	ErrTokenExpired  = errors.New("admission token expired")
)
