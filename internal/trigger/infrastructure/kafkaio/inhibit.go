package kafkaio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

const inhibitPollTimeout = 200 * time.Millisecond

// InhibitSubscriber consumes busy/idle notifications from a topic.
type InhibitSubscriber struct {
	topic     string
	newReader func() messageReader
	logger    logrus.FieldLogger
}

// Subscribe starts a consumer goroutine delivering notifications to handler.
// The returned cancel stops it and waits for it to exit.
func (s *InhibitSubscriber) Subscribe(ctx context.Context, handler application.InhibitHandler) (func(), error) {
	if handler == nil {
		return nil, errors.New("kafka inhibit: nil handler")
	}
	reader := newReader[trigger.Inhibit](s.topic, s.newReader())
	runCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()
		for runCtx.Err() == nil {
			msg, ok, err := reader.TryReceive(runCtx, inhibitPollTimeout)
			if err != nil {
				if runCtx.Err() == nil {
					s.logger.WithError(err).WithField("topic", s.topic).Warn("inhibit receive failed")
				}
				continue
			}
			if ok {
				handler(runCtx, msg)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
