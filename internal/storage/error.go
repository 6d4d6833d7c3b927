package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a key is absent from the backend.
var ErrNotFound = errors.New("not found")

// An Error is an infrastructure failure of the storage backend.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: could not %s %s: %s", e.Op, e.Key, e.Err)
}

// Cause returns the underlying error.
func (e *Error) Cause() error {
	return e.Err
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is caused by a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notfound(key string) error {
	return errors.Wrap(ErrNotFound, key)
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:  op,
		Key: key,
		Err: err,
	}
}
