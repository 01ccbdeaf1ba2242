package domain

import (
	"fmt"
	"strings"
)

// SequenceStatus is the persisted lifecycle code of a sequence.
type SequenceStatus int

// SequenceStatus values. The integers are the storage encoding.
const (
	SequenceActive   SequenceStatus = 1
	SequenceFinished SequenceStatus = 2
)

// String returns the lower-case status label.
func (s SequenceStatus) String() string {
	switch s {
	case SequenceActive:
		return "active"
	case SequenceFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsValid reports whether s is a known status.
func (s SequenceStatus) IsValid() bool {
	return s == SequenceActive || s == SequenceFinished
}

// ParseSequenceStatus accepts a label ("active", "finished") or its storage code.
func ParseSequenceStatus(raw string) (SequenceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "1":
		return SequenceActive, nil
	case "finished", "2":
		return SequenceFinished, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSequenceStatus, raw)
	}
}

// MarshalText encodes the status label.
func (s SequenceStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, ErrInvalidSequenceStatus
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status label.
func (s *SequenceStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSequenceStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Sequence is a bounded episode of consecutive intervals.
type Sequence struct {
	ID     int64
	Status SequenceStatus
}

// NewSequence returns an ACTIVE sequence awaiting an ID.
func NewSequence() Sequence {
	return Sequence{Status: SequenceActive}
}

// IsActive reports whether the sequence can still accept intervals.
func (s Sequence) IsActive() bool {
	return s.Status == SequenceActive
}

// Finish moves the sequence to its terminal state. FINISHED never transitions again.
func (s *Sequence) Finish() error {
	if s.Status == SequenceFinished {
		return ErrSequenceFinished
	}
	if s.Status != SequenceActive {
		return ErrInvalidSequenceStatus
	}
	s.Status = SequenceFinished
	return nil
}
