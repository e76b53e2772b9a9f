package memory

import (
	"context"
	"sync"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

// InhibitFeed fans busy/idle notifications out to subscribers.
// Publish runs handlers on the caller's goroutine.
type InhibitFeed struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]application.InhibitHandler
}

// NewInhibitFeed constructs an empty feed.
func NewInhibitFeed() *InhibitFeed {
	return &InhibitFeed{handlers: make(map[int]application.InhibitHandler)}
}

// Subscribe registers handler until the returned cancel is called.
func (f *InhibitFeed) Subscribe(ctx context.Context, handler application.InhibitHandler) (func(), error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}, nil
}

// Publish delivers msg to every current subscriber.
func (f *InhibitFeed) Publish(ctx context.Context, msg trigger.Inhibit) {
	f.mu.RLock()
	handlers := make([]application.InhibitHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		handler(ctx, msg)
	}
}

// Subscribers returns the number of active subscriptions.
func (f *InhibitFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
