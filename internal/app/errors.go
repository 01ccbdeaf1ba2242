package app

import "errors"

// ErrValidation, ErrConflict and ErrNotFound classify every service failure.
// Service errors wrap one of them together with the specific cause.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

// Specific causes reported alongside the taxonomy errors.
var (
	ErrUnknownNode          = errors.New("unknown node")
	ErrDuplicateNode        = errors.New("node name already in use")
	ErrNodeReferenced       = errors.New("node is referenced by intervals")
	ErrActiveSequenceExists = errors.New("active sequence already exists")
	ErrNoActiveSequence     = errors.New("no active sequence")
	ErrNoOpenInterval       = errors.New("no open interval")
	ErrLedgerNotEmpty       = errors.New("ledger is not empty")
	ErrInvalidSnapshot      = errors.New("invalid snapshot")
)
