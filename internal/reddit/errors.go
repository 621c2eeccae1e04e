package reddit

import (
	"errors"
	"fmt"
)

// ClientError wraps any transport, protocol, or decoding failure from the
// reddit API into a single caller-facing type
type ClientError struct {
	Op     string
	Status int
	Err    error
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("reddit client %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("reddit client %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

// ForbiddenError signals the remote resource is no longer accessible, e.g. a
// community that has gone private. Callers should skip, not escalate.
type ForbiddenError struct {
	Op string
}

// Error implements the error interface
func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("reddit client %s: forbidden", e.Op)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError
func IsForbidden(err error) bool {
	var forbidden *ForbiddenError
	return errors.As(err, &forbidden)
}
