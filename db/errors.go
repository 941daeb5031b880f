package db

import (
	"strings"

	"github.com/teranos/logtap/errors"
)

// ErrClosed marks work attempted after the database was closed, which
// happens when a host shuts down under in-flight requests.
var ErrClosed = errors.New("database is closed")

// IsClosed reports whether err is ErrClosed or the driver's own
// "database is closed" error, which database/sql returns unwrapped.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// Wrapf annotates a storage error. Closed-database errors become
// ErrServiceUnavailable so callers can tell "try again later" apart from
// real failures; everything else is wrapped as is.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if IsClosed(err) {
		return errors.WithSecondaryError(errors.NewServiceUnavailableError(format, args...), err)
	}
	return errors.Wrapf(err, format, args...)
}
