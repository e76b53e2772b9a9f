package kafkaio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader decodes JSON messages of type T from one topic.
type Reader[T any] struct {
	topic  string
	reader messageReader
}

func newReader[T any](topic string, r messageReader) *Reader[T] {
	return &Reader[T]{topic: topic, reader: r}
}

// TryReceive fetches the next message, waiting at most timeout. A timeout is
// reported as ok=false with a nil error. Undecodable messages are committed
// and returned as errors so the caller can count them.
func (r *Reader[T]) TryReceive(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	msg, err := r.reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("kafka fetch %s: %w", r.topic, err)
	}

	var value T
	decodeErr := json.Unmarshal(msg.Value, &value)
	if err := r.reader.CommitMessages(ctx, msg); err != nil {
		return zero, false, fmt.Errorf("kafka commit %s: %w", r.topic, err)
	}
	if decodeErr != nil {
		return zero, false, fmt.Errorf("kafka decode %s offset %d: %w", r.topic, msg.Offset, decodeErr)
	}
	return value, true, nil
}

// Close closes the underlying reader.
func (r *Reader[T]) Close() error {
	return r.reader.Close()
}

// Writer encodes values of type T as JSON messages on one topic.
type Writer[T any] struct {
	topic  string
	writer messageWriter
	key    func(T) []byte
	// minTimeout bounds how long Send waits for the broker to acknowledge.
	minTimeout time.Duration
}

func newWriter[T any](topic string, w messageWriter, key func(T) []byte, minTimeout time.Duration) *Writer[T] {
	return &Writer[T]{topic: topic, writer: w, key: key, minTimeout: minTimeout}
}

// Send writes value and waits for the broker, for at least the writer's
// delivery timeout even when timeout is shorter. Giving up while the batch is
// in flight returns an error wrapping application.ErrDeliveryUnconfirmed.
func (w *Writer[T]) Send(ctx context.Context, value T, timeout time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka encode %s: %w", w.topic, err)
	}
	msg := kafka.Message{Value: payload, Time: time.Now()}
	if w.key != nil {
		msg.Key = w.key(value)
	}

	if timeout < w.minTimeout {
		timeout = w.minTimeout
	}
	writeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err = w.writer.WriteMessages(writeCtx, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("kafka write %s: %w: %w", w.topic, application.ErrDeliveryUnconfirmed, err)
	default:
		return fmt.Errorf("kafka write %s: %w", w.topic, err)
	}
}

// Close flushes and closes the underlying writer.
func (w *Writer[T]) Close() error {
	return w.writer.Close()
}

// decisionKey keeps every decision of a run on one partition.
func decisionKey(d trigger.Decision) []byte {
	return []byte(strconv.FormatUint(uint64(d.RunNumber), 10))
}

// candidateKey groups candidates by detector id.
func candidateKey(c trigger.Candidate) []byte {
	return []byte(strconv.FormatUint(uint64(c.DetID), 10))
}
