package models

import (
	"time"
)

// OperationStatus is the lifecycle state of one orchestration operation.
type OperationStatus string

const (
	// StatusStarted means the operation is registered but no phase has begun.
	StatusStarted OperationStatus = "started"
	// StatusRunning means at least one phase is executing. An operation may
	// re-enter running as successive phases begin.
	StatusRunning OperationStatus = "running"
	// StatusCompleted is terminal: the operation finished, possibly with
	// partial failures recorded in its result.
	StatusCompleted OperationStatus = "completed"
	// StatusFailed is terminal: the operation could not produce a result at
	// all (validation failure or structural error before item-level work).
	StatusFailed OperationStatus = "failed"
)

// Terminal reports whether s accepts no further transitions.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProgressEntry is one append-only log line in an operation's progress record.
type ProgressEntry struct {
	Timestamp time.Time
	Phase     string
	Message   string
}

// OperationProgress is the pollable progress record for one top-level
// orchestration call. Records live in a process-wide registry keyed by
// OperationID for the lifetime of the process; there is no persistence
// across restarts.
type OperationProgress struct {
	// OperationID has the form prefix_timestamp_random
	OperationID string

	Status OperationStatus
	Logs   []ProgressEntry

	StartedAt   time.Time
	CompletedAt *time.Time

	// TotalSteps is derived from the resolved template (item, relationship,
	// environment, solution and identity counts), not a fixed constant
	TotalSteps     int
	CompletedSteps int
}
