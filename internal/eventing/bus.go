package eventing

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives published envelopes.
type Handler func(ctx context.Context, env Envelope) error

// Bus is an in-process publish/subscribe bus. Handlers run synchronously on
// the publisher's goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	logger   logrus.FieldLogger
}

// NewBus constructs an empty bus.
func NewBus(logger logrus.FieldLogger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{handlers: map[int]Handler{}, logger: logger.WithField("component", "eventing")}
}

// Subscribe registers handler and returns a function removing it.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish wraps event in an envelope and delivers it to every subscriber.
// Handler errors are logged and joined into the returned error.
func (b *Bus) Publish(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	ctx = WithEnvelope(ctx, env)
	var errs []error
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler(ctx, env); err != nil {
			b.logger.WithError(err).WithField("event_type", env.EventType).Warn("event handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
