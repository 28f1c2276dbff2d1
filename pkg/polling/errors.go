package polling

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotUnavailable means the count query returned nothing usable.
	ErrSnapshotUnavailable = errors.New("unable to retrieve message counts")
	// ErrNotImplemented is returned by strategies that leave an operation out.
	ErrNotImplemented = errors.New("not implemented")
)

// Error is a categorized polling failure. Op names the step that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "polling " + e.Op
	}

	return fmt.Sprintf("polling %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func newError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
