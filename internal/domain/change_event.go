package domain

import "strings"

// ChangeTable names a ledger table whose rows changed.
type ChangeTable string

// ChangeTable values.
const (
	ChangeTableNodes     ChangeTable = "nodes"
	ChangeTableSequences ChangeTable = "sequences"
	ChangeTableIntervals ChangeTable = "intervals"
)

// ChangeOperation describes a persisted row mutation.
type ChangeOperation string

// ChangeOperation values used by the activity log.
const (
	ChangeOperationInsert ChangeOperation = "insert"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationDelete ChangeOperation = "delete"
)

// ChangeEvent is a single activity-log entry.
type ChangeEvent struct {
	ID         int64
	Table      ChangeTable
	Operation  ChangeOperation
	RowID      int64
	OccurredAt int64
}

// ParseChangeTable normalizes a table name.
func ParseChangeTable(raw string) (ChangeTable, error) {
	switch table := ChangeTable(strings.ToLower(strings.TrimSpace(raw))); table {
	case ChangeTableNodes, ChangeTableSequences, ChangeTableIntervals:
		return table, nil
	default:
		return "", ErrInvalidChangeTable
	}
}
