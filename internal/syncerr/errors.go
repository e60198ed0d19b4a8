// Package syncerr holds the error taxonomy shared by the sync engine,
// the media pipeline and the remote clients.
package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures that are retried on the next poll or backoff tick.
	ErrTransient = errors.New("transient network failure")

	// ErrManualRequired means a media fetch is suppressed by policy.
	ErrManualRequired = errors.New("manual download required")

	// ErrDataIntegrity means a record required for the operation is missing locally.
	ErrDataIntegrity = errors.New("data integrity")

	// ErrUnsupported means a field type cannot be mapped to or from the wire.
	ErrUnsupported = errors.New("unsupported field type")

	// ErrNotFound is returned by remote updates on documents that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when remote credentials are missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Transient wraps err so that errors.Is(err, ErrTransient) reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// IsTransient reports whether err should be retried later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
