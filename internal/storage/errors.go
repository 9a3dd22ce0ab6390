// Package storage defines the error taxonomy shared by the store adapters.
package storage

import (
	"errors"
	"fmt"
)

// ErrFatal marks a store failure no retry can fix: bad credentials, a missing
// table, a schema mismatch. The ingestion engine aborts the run when it sees
// one; everything else is treated as transient and survivable per record.
var ErrFatal = errors.New("fatal store error")

// Fatal wraps err so callers can detect it with errors.Is(err, ErrFatal).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrFatal, err)
}

// Fatalf formats a fatal store error.
func Fatalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err is a fatal store error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
