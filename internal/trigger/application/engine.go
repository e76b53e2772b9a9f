package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	gating "daq-trigger/internal/gating/domain"
	"daq-trigger/internal/observability/metrics"
	trigger "daq-trigger/internal/trigger/domain"
	windowing "daq-trigger/internal/windowing/domain"
)

type phase int

const (
	phaseUnconfigured phase = iota
	phaseConfigured
	phaseRunning
)

func (p phase) String() string {
	switch p {
	case phaseConfigured:
		return "configured"
	case phaseRunning:
		return "running"
	default:
		return "unconfigured"
	}
}

// runState is shared between the decision loop, the inhibit callback and
// lifecycle commands. Every field is accessed atomically.
type runState struct {
	run           atomic.Uint32
	active        atomic.Bool
	stopRequested atomic.Bool
	paused        atomic.Bool
	busy          atomic.Bool

	lastTriggerNumber  atomic.Uint64
	candidatesReceived atomic.Uint64
	decisionsSent      atomic.Uint64
	decisionsFailed    atomic.Uint64
	decisionsInhibited atomic.Uint64
	decisionsPaused    atomic.Uint64
	decisionsTotal     atomic.Uint64

	gate atomic.Pointer[gating.Gate]
}

func (s *runState) reset(run trigger.RunNumber, gate *gating.Gate) {
	s.run.Store(uint32(run))
	s.stopRequested.Store(false)
	s.paused.Store(true)
	s.busy.Store(false)
	s.lastTriggerNumber.Store(0)
	s.candidatesReceived.Store(0)
	s.decisionsSent.Store(0)
	s.decisionsFailed.Store(0)
	s.decisionsInhibited.Store(0)
	s.decisionsPaused.Store(0)
	s.decisionsTotal.Store(0)
	s.gate.Store(gate)
	s.active.Store(true)
}

// loopConfig is fixed for the lifetime of one run.
type loopConfig struct {
	run         trigger.RunNumber
	links       []trigger.Link
	passthrough bool
	pollTimeout time.Duration
	sendTimeout time.Duration
	source      CandidateSource
	sink        DecisionSink
}

// Engine turns trigger candidates into trigger decisions for one run at a time.
type Engine struct {
	conns  Connections
	store  RunStore
	events EventPublisher
	clock  gating.Clock
	logger logrus.FieldLogger

	history *windowing.Buffer[trigger.Candidate]

	// mu serializes lifecycle commands. phase is also read without it.
	mu            sync.Mutex
	phase         atomic.Int32
	params        resolvedParams
	source        CandidateSource
	cancelInhibit func()
	loopCancel    context.CancelFunc
	done          chan struct{}

	state   runState
	lastRun atomic.Pointer[trigger.RunSummary]
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunStore records run starts and summaries in store.
func WithRunStore(store RunStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithEventPublisher publishes lifecycle events on publisher.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(e *Engine) { e.events = publisher }
}

// WithClock sets the clock used for livetime accounting and timestamps.
func WithClock(clock gating.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithCandidateHistory keeps every received candidate in history, keyed by
// its readout window.
func WithCandidateHistory(history *windowing.Buffer[trigger.Candidate]) Option {
	return func(e *Engine) { e.history = history }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an unconfigured engine.
func NewEngine(conns Connections, opts ...Option) (*Engine, error) {
	if conns == nil {
		return nil, ErrNilConnections
	}
	e := &Engine{
		conns:  conns,
		clock:  gating.SystemClock{},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "trigger-engine")
	return e, nil
}

// loop consumes candidates until stop was requested and a poll comes back empty.
func (e *Engine) loop(ctx context.Context, cfg loopConfig, done chan<- struct{}) {
	defer close(done)
	log := e.logger.WithField("run", cfg.run)

	for {
		candidate, ok, err := cfg.source.TryReceive(ctx, cfg.pollTimeout)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.WithError(err).Debug("candidate receive failed")
		}
		if !ok {
			if e.state.stopRequested.Load() {
				break
			}
			continue
		}
		e.handleCandidate(ctx, log, cfg, candidate)
	}

	log.WithFields(logrus.Fields{
		"received":  e.state.candidatesReceived.Load(),
		"sent":      e.state.decisionsSent.Load(),
		"paused":    e.state.decisionsPaused.Load(),
		"inhibited": e.state.decisionsInhibited.Load(),
		"failed":    e.state.decisionsFailed.Load(),
	}).Info("decision loop finished")
}

func (e *Engine) handleCandidate(ctx context.Context, log logrus.FieldLogger, cfg loopConfig, candidate trigger.Candidate) {
	e.state.candidatesReceived.Add(1)
	if e.history != nil {
		e.history.Add(windowing.Interval[trigger.Candidate]{
			Start:   uint64(candidate.TimeStart),
			End:     uint64(candidate.TimeEnd),
			Payload: candidate,
		})
	}

	paused := e.state.paused.Load()
	busy := e.state.busy.Load()
	switch {
	case !paused && !busy:
		decision := e.createDecision(cfg, candidate)
		log.WithFields(logrus.Fields{
			"trigger_number": decision.TriggerNumber,
			"timestamp":      decision.TriggerTimestamp,
			"links":          len(decision.Components),
			"candidate_type": candidate.Type,
			"trigger_type":   decision.TriggerType,
		}).Debug("sending decision")

		started := time.Now()
		err := cfg.sink.Send(ctx, decision, cfg.sendTimeout)
		switch {
		case err == nil:
			metrics.ObserveDecisionSend(metrics.ResultSuccess, time.Since(started))
			e.state.decisionsSent.Add(1)
			e.state.lastTriggerNumber.Add(1)
		case errors.Is(err, ErrDeliveryUnconfirmed):
			// The number may already be on the wire and must not be reused.
			metrics.ObserveDecisionSend(metrics.ResultTimeout, time.Since(started))
			e.state.decisionsFailed.Add(1)
			e.state.lastTriggerNumber.Add(1)
			log.WithError(err).WithFields(logrus.Fields{
				"timestamp":      candidate.TimeCandidate,
				"trigger_number": decision.TriggerNumber,
			}).Error("decision delivery unconfirmed, trigger number consumed")
		default:
			metrics.ObserveDecisionSend(sendResult(err), time.Since(started))
			e.state.decisionsFailed.Add(1)
			log.WithError(err).WithField("timestamp", candidate.TimeCandidate).Error("decision send failed, dropping decision")
		}
	case paused:
		e.state.decisionsPaused.Add(1)
		log.Debug("triggers are paused, not sending decision")
	default:
		e.state.decisionsInhibited.Add(1)
		log.WithField("timestamp", candidate.TimeCandidate).Warn("trigger inhibited: downstream is busy")
	}
	e.state.decisionsTotal.Add(1)
}

func (e *Engine) createDecision(cfg loopConfig, candidate trigger.Candidate) trigger.Decision {
	number := trigger.TriggerNumber(e.state.lastTriggerNumber.Load() + 1)
	return trigger.NewDecision(candidate, number, cfg.run, cfg.links, cfg.passthrough)
}

func sendResult(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrSendTimeout) {
		return metrics.ResultTimeout
	}
	return metrics.ResultError
}
