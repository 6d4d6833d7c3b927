package upload

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalid is returned on malformed hash, index, total or file name.
	ErrInvalid = errors.New("invalid parameter")
	// ErrConflict is returned when another operation holds the upload session.
	ErrConflict = errors.New("upload session is busy")
	// ErrTooLarge is returned when a chunk exceeds the maximum chunk size.
	ErrTooLarge = errors.New("chunk too large")
	// ErrChecksumMismatch is returned when the assembled file does not match the upload hash.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// A MergeError is returned when a merge fails.
// Index is the chunk being processed or -1 when the failure occurs after all chunks were read.
type MergeError struct {
	Index int
	Err   error
}

func (e *MergeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("merge: %s", e.Err)
	}
	return fmt.Sprintf("merge: chunk %d: %s", e.Index, e.Err)
}

// Cause returns the underlying error.
func (e *MergeError) Cause() error {
	return e.Err
}

// Unwrap returns the underlying error.
func (e *MergeError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}
