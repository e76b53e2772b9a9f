package application

import (
	"context"
	"time"

	trigger "daq-trigger/internal/trigger/domain"
)

// CandidateSource yields candidates, waiting at most timeout for one.
// ok is false when nothing arrived in time.
type CandidateSource interface {
	TryReceive(ctx context.Context, timeout time.Duration) (candidate trigger.Candidate, ok bool, err error)
}

// DecisionSink delivers decisions downstream within timeout. An error
// wrapping ErrDeliveryUnconfirmed means the decision may still be delivered.
type DecisionSink interface {
	Send(ctx context.Context, decision trigger.Decision, timeout time.Duration) error
}

// InhibitHandler receives busy/idle notifications.
type InhibitHandler func(ctx context.Context, msg trigger.Inhibit)

// InhibitSource pushes notifications to handler until cancel is called.
type InhibitSource interface {
	Subscribe(ctx context.Context, handler InhibitHandler) (cancel func(), err error)
}

// Connections resolves configured endpoint names.
type Connections interface {
	CandidateSource(name string) (CandidateSource, error)
	DecisionSink(name string) (DecisionSink, error)
	InhibitSource(name string) (InhibitSource, error)
}

// RunStore records run starts and final summaries.
type RunStore interface {
	RecordStart(ctx context.Context, run trigger.RunNumber, startedAt time.Time) error
	RecordSummary(ctx context.Context, summary trigger.RunSummary) error
}

// RunReader reads recorded runs.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]trigger.RunSummary, error)
	GetRun(ctx context.Context, run trigger.RunNumber) (*trigger.RunSummary, error)
}

// EventPublisher publishes run lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}
