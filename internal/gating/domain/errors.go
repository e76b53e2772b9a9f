package gating

import "errors"

// ErrInvalidState is returned when a state outside live/paused/dead is requested.
var ErrInvalidState = errors.New("gating: invalid state")
