package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrValidation      = errors.New("invalid input")
	ErrStateConflict   = errors.New("operation invalid for current state")
	ErrOfferExpired    = errors.New("offer expired")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrVersionConflict = errors.New("version conflict")
	ErrLockHeld        = errors.New("lock already held")
	ErrContextDone     = errors.New("context cancelled")
)
