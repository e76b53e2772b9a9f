package timing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"daq-trigger/internal/observability/metrics"
	trigger "daq-trigger/internal/trigger/domain"
)

const defaultQueueTimeout = 100 * time.Millisecond

var (
	// ErrUnknownSignalType is returned for signals without configured offsets.
	ErrUnknownSignalType = errors.New("timing: unknown signal type")
	// ErrNoSignals is returned when Configure receives an empty list.
	ErrNoSignals = errors.New("timing: no signals configured")
	// ErrDuplicateSignal is returned when a signal type is configured twice.
	ErrDuplicateSignal = errors.New("timing: duplicate signal type")
)

// TimeStampedData is one hardware timing signal.
type TimeStampedData struct {
	Timestamp  trigger.Timestamp `json:"timestamp" yaml:"timestamp"`
	SignalType uint32            `json:"signal_type" yaml:"signal_type"`
	Counter    uint32            `json:"counter" yaml:"counter"`
}

// SignalConf gives the readout window around one signal type.
type SignalConf struct {
	SignalType uint32 `yaml:"signal_type" json:"signal_type"`
	TimeBefore uint64 `yaml:"time_before" json:"time_before"`
	TimeAfter  uint64 `yaml:"time_after" json:"time_after"`
}

// SignalSource yields timing signals.
type SignalSource interface {
	TryReceive(ctx context.Context, timeout time.Duration) (TimeStampedData, bool, error)
}

// CandidateSink accepts candidates.
type CandidateSink interface {
	Send(ctx context.Context, candidate trigger.Candidate, timeout time.Duration) error
}

type offsets struct {
	before uint64
	after  uint64
}

// Maker converts timing signals into Timing candidates.
type Maker struct {
	mu           sync.RWMutex
	offsets      map[uint32]offsets
	queueTimeout time.Duration
	logger       logrus.FieldLogger
}

// Option configures a Maker.
type Option func(*Maker)

// WithQueueTimeout overrides the pop and push timeout.
func WithQueueTimeout(d time.Duration) Option {
	return func(m *Maker) {
		if d > 0 {
			m.queueTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Maker) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMaker constructs an unconfigured maker.
func NewMaker(opts ...Option) *Maker {
	m := &Maker{
		offsets:      map[uint32]offsets{},
		queueTimeout: defaultQueueTimeout,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "timing-candidate-maker")
	return m
}

// Configure replaces the offset table. On error the previous table is kept.
func (m *Maker) Configure(signals []SignalConf) error {
	if len(signals) == 0 {
		return ErrNoSignals
	}
	table := make(map[uint32]offsets, len(signals))
	for _, s := range signals {
		if _, ok := table[s.SignalType]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateSignal, s.SignalType)
		}
		table[s.SignalType] = offsets{before: s.TimeBefore, after: s.TimeAfter}
	}

	m.mu.Lock()
	m.offsets = table
	m.mu.Unlock()
	m.logger.WithField("signals", len(table)).Debug("configured")
	return nil
}

// Convert builds the Timing candidate for data. The window is clamped to the
// timestamp range at both ends.
func (m *Maker) Convert(data TimeStampedData) (trigger.Candidate, error) {
	m.mu.RLock()
	off, ok := m.offsets[data.SignalType]
	m.mu.RUnlock()
	if !ok {
		return trigger.Candidate{}, fmt.Errorf("%w: %d", ErrUnknownSignalType, data.SignalType)
	}

	ts := uint64(data.Timestamp)
	start := uint64(0)
	if ts > off.before {
		start = ts - off.before
	}
	end := uint64(math.MaxUint64)
	if ts <= math.MaxUint64-off.after {
		end = ts + off.after
	}
	return trigger.Candidate{
		TimeStart:     trigger.Timestamp(start),
		TimeEnd:       trigger.Timestamp(end),
		TimeCandidate: data.Timestamp,
		Type:          trigger.TypeTiming,
		DetID:         uint16(data.SignalType),
	}, nil
}

// Run converts signals from src and pushes them to sink until ctx is done.
// A push that times out is retried until it succeeds or ctx ends.
func (m *Maker) Run(ctx context.Context, src SignalSource, sink CandidateSink) {
	for {
		if ctx.Err() != nil {
			return
		}
		data, ok, err := src.TryReceive(ctx, m.queueTimeout)
		if err != nil && ctx.Err() == nil {
			m.logger.WithError(err).Debug("signal receive failed")
		}
		if !ok {
			continue
		}

		candidate, err := m.Convert(data)
		metrics.IncTimingCandidate(err)
		if err != nil {
			m.logger.WithError(err).WithField("timestamp", data.Timestamp).Error("dropping timing signal")
			continue
		}
		m.push(ctx, sink, candidate)
	}
}

func (m *Maker) push(ctx context.Context, sink CandidateSink, candidate trigger.Candidate) {
	for {
		err := sink.Send(ctx, candidate, m.queueTimeout)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			m.logger.WithField("timestamp", candidate.TimeCandidate).Warn("shutting down with unsent timing candidate")
			return
		}
		m.logger.WithError(err).WithFields(logrus.Fields{
			"timestamp":  candidate.TimeCandidate,
			"timeout_ms": m.queueTimeout.Milliseconds(),
		}).Warn("push to candidate queue timed out, retrying")
	}
}
