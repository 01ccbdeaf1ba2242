package domain

import "errors"

var (
	ErrInvalidID             = errors.New("invalid id")
	ErrInvalidName           = errors.New("invalid name")
	ErrInvalidTimestamp      = errors.New("invalid timestamp")
	ErrEndBeforeStart        = errors.New("end time precedes start time")
	ErrIntervalClosed        = errors.New("interval already closed")
	ErrIntervalOpen          = errors.New("interval is still open")
	ErrOutOfOrder            = errors.New("timestamp precedes the previous interval end")
	ErrSequenceFinished      = errors.New("sequence already finished")
	ErrInvalidSequenceStatus = errors.New("invalid sequence status")
	ErrInvalidChangeTable    = errors.New("invalid change table")
)
