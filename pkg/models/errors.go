package models

import (
	"errors"
	"fmt"
)

// CreationError records one item that could not be created after all retry
// attempts were exhausted. It never aborts sibling items.
type CreationError struct {
	Kind   ItemKind
	Title  string
	Reason string
}

// Error implements the error interface.
func (e CreationError) Error() string {
	return fmt.Sprintf("failed to create %s '%s': %s", e.Kind, e.Title, e.Reason)
}

// RemoteError wraps an error returned by a remote platform together with its
// retryability classification. The platform wrapper that produced the error
// owns the classification; the orchestrator trusts it.
type RemoteError struct {
	// Op names the remote operation that failed (e.g. "create work item")
	Op string

	// StatusCode is the HTTP status code, if one was received
	StatusCode int

	// Retryable indicates the failure is transient (rate limit, 5xx,
	// network) and worth retrying
	Retryable bool

	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status: %d)", e.Op, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is classified as transient. Errors that
// carry no classification are treated as non-retryable.
func IsRetryable(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Retryable
	}
	return false
}
