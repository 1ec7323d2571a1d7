package storage

import "errors"

// Sentinel error kinds shared by all backends. Backends translate their
// driver-specific failures into these so the import pipeline can reason about
// idempotency and retries in one place.
var (
	// ErrUniqueViolation reports that an insert hit a unique constraint.
	ErrUniqueViolation = errors.New("storage: unique constraint violation")

	// ErrSequenceUnknown reports that a named sequence does not exist.
	ErrSequenceUnknown = errors.New("storage: unknown sequence")
)

// IsUniqueViolation reports whether err (or anything it wraps) is a
// unique-constraint violation.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// transientError marks a backend failure worth retrying (connection drops,
// serialization failures, deadlocks). The wrapped error is preserved.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked transient by a backend.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
