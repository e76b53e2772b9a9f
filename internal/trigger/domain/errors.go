package trigger

import "errors"

var (
	// ErrUnknownSystemType is returned when a link names an unknown subsystem.
	ErrUnknownSystemType = errors.New("trigger: unknown system type")
	// ErrRunNotFound is returned when a run was never recorded.
	ErrRunNotFound = errors.New("trigger: run not found")
)
