package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daq-trigger/internal/trigger/application"
)

// ErrQueueFull is returned by Send when the queue stays full for the whole timeout.
var ErrQueueFull = fmt.Errorf("memory queue: full: %w", application.ErrSendTimeout)

// ErrInvalidCapacity is returned for a non-positive queue capacity.
var ErrInvalidCapacity = errors.New("memory queue: invalid capacity")

// Queue is a bounded in-process FIFO.
type Queue[T any] struct {
	items chan T
}

// NewQueue constructs a queue holding at most capacity items.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{items: make(chan T, capacity)}, nil
}

// TryReceive waits at most timeout for an item.
func (q *Queue[T]) TryReceive(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	select {
	case item := <-q.items:
		return item, true, nil
	default:
	}
	if timeout <= 0 {
		return zero, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.items:
		return item, true, nil
	case <-timer.C:
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Send enqueues item, waiting at most timeout for room.
func (q *Queue[T]) Send(ctx context.Context, item T, timeout time.Duration) error {
	select {
	case q.items <- item:
		return nil
	default:
	}
	if timeout <= 0 {
		return ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.items <- item:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		select {
		case item := <-q.items:
			out = append(out, item)
		default:
			return out
		}
	}
}
