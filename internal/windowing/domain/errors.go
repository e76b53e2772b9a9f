package windowing

import "errors"

// ErrInvalidCapacity is returned when a buffer is created with capacity below one.
var ErrInvalidCapacity = errors.New("windowing: capacity must be at least 1")
