package application

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	gating "daq-trigger/internal/gating/domain"
	"daq-trigger/internal/observability/metrics"
	trigger "daq-trigger/internal/trigger/domain"
)

// Configure validates params and resolves the candidate source.
// On error any previous configuration is dropped and the engine is
// unconfigured.
func (e *Engine) Configure(params ConfParams) (err error) {
	defer func() { metrics.IncLifecycle("configure", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadPhase() == phaseRunning {
		return ErrAlreadyRunning
	}
	resolved, err := params.resolve()
	if err != nil {
		e.unconfigure()
		return err
	}
	source, err := e.conns.CandidateSource(resolved.candidate)
	if err != nil {
		e.unconfigure()
		return fmt.Errorf("candidate source %q: %w", resolved.candidate, err)
	}
	e.params = resolved
	e.source = source
	e.phase.Store(int32(phaseConfigured))
	e.logger.WithField("links", len(resolved.links)).Info("configured")
	return nil
}

// Start begins run number run with triggers paused.
func (e *Engine) Start(ctx context.Context, run trigger.RunNumber) (err error) {
	defer func() { metrics.IncLifecycle("start", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.loadPhase() {
	case phaseUnconfigured:
		return ErrNotConfigured
	case phaseRunning:
		return ErrAlreadyRunning
	}

	sink, err := e.conns.DecisionSink(e.params.decision)
	if err != nil {
		return fmt.Errorf("decision sink %q: %w", e.params.decision, err)
	}
	inhibits, err := e.conns.InhibitSource(e.params.inhibit)
	if err != nil {
		return fmt.Errorf("inhibit source %q: %w", e.params.inhibit, err)
	}
	gate, err := gating.NewGate(gating.StatePaused, gating.WithClock(e.clock))
	if err != nil {
		return err
	}

	e.state.reset(run, gate)
	cancelInhibit, err := inhibits.Subscribe(context.WithoutCancel(ctx), e.HandleInhibit)
	if err != nil {
		e.state.active.Store(false)
		e.state.gate.Store(nil)
		return fmt.Errorf("subscribe inhibit source %q: %w", e.params.inhibit, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	cfg := loopConfig{
		run:         run,
		links:       e.params.links,
		passthrough: e.params.passthrough,
		pollTimeout: e.params.pollTimeout,
		sendTimeout: e.params.sendTimeout,
		source:      e.source,
		sink:        sink,
	}
	go e.loop(loopCtx, cfg, done)

	e.cancelInhibit = cancelInhibit
	e.loopCancel = cancel
	e.done = done
	e.phase.Store(int32(phaseRunning))

	if e.store != nil {
		if err := e.store.RecordStart(ctx, run, gate.CreatedAt()); err != nil {
			e.logger.WithError(err).WithField("run", run).Warn("record run start failed")
		}
	}
	e.publish(ctx, RunStarted{RunNumber: run, OccurredAt: gate.CreatedAt()})
	e.logger.WithField("run", run).Info("run started")
	return nil
}

// Stop requests the loop to finish, waits for it to drain the candidate
// source and closes the run. The summary is recorded and published even when
// ctx is cancelled while the loop drains.
func (e *Engine) Stop(ctx context.Context) (err error) {
	defer func() { metrics.IncLifecycle("stop", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadPhase() != phaseRunning {
		return ErrNotRunning
	}

	e.state.stopRequested.Store(true)
	<-e.done
	e.loopCancel()

	gate := e.state.gate.Load()
	times := gate.Times()
	summary := e.summary(gate.CreatedAt(), e.clock.Now(), times)

	e.state.active.Store(false)
	e.state.gate.Store(nil)
	if e.cancelInhibit != nil {
		e.cancelInhibit()
	}
	e.cancelInhibit = nil
	e.loopCancel = nil
	e.done = nil
	e.phase.Store(int32(phaseConfigured))
	e.lastRun.Store(&summary)

	ctx = context.WithoutCancel(ctx)
	if e.store != nil {
		if err := e.store.RecordSummary(ctx, summary); err != nil {
			e.logger.WithError(err).WithField("run", summary.RunNumber).Warn("record run summary failed")
		}
	}
	e.publish(ctx, RunStopped{Summary: summary, OccurredAt: summary.StoppedAt})
	e.logger.WithFields(logrus.Fields{
		"run":      summary.RunNumber,
		"live":     summary.LiveTime,
		"paused":   summary.PausedTime,
		"dead":     summary.DeadTime,
		"deadtime": summary.Deadtime(),
	}).Info("run stopped")
	return nil
}

// Pause stops decisions from being sent until Resume.
func (e *Engine) Pause(ctx context.Context) (err error) {
	defer func() { metrics.IncLifecycle("pause", err) }()

	gate, run, err := e.activeGate()
	if err != nil {
		return err
	}
	gate.Pause()
	e.state.paused.Store(true)
	e.logger.WithField("run", run).Info("triggers paused")
	e.publish(ctx, TriggersPaused{RunNumber: run, OccurredAt: e.clock.Now()})
	return nil
}

// Resume re-enables decisions. A busy downstream still inhibits them.
func (e *Engine) Resume(ctx context.Context) (err error) {
	defer func() { metrics.IncLifecycle("resume", err) }()

	gate, run, err := e.activeGate()
	if err != nil {
		return err
	}
	gate.Resume()
	e.state.paused.Store(false)
	e.logger.WithField("run", run).Info("triggers resumed")
	e.publish(ctx, TriggersResumed{RunNumber: run, OccurredAt: e.clock.Now()})
	return nil
}

// Scrap drops the configuration. Scrapping an unconfigured engine is a no-op.
func (e *Engine) Scrap() (err error) {
	defer func() { metrics.IncLifecycle("scrap", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadPhase() == phaseRunning {
		return ErrAlreadyRunning
	}
	e.unconfigure()
	return nil
}

// unconfigure must be called with mu held.
func (e *Engine) unconfigure() {
	e.params = resolvedParams{}
	e.source = nil
	e.phase.Store(int32(phaseUnconfigured))
}

func (e *Engine) loadPhase() phase {
	return phase(e.phase.Load())
}

func (e *Engine) activeGate() (*gating.Gate, trigger.RunNumber, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadPhase() != phaseRunning {
		return nil, 0, ErrNotRunning
	}
	return e.state.gate.Load(), trigger.RunNumber(e.state.run.Load()), nil
}

func (e *Engine) summary(startedAt, stoppedAt time.Time, times gating.Times) trigger.RunSummary {
	s := e.counters()
	s.Status = trigger.RunStatusStopped
	s.StartedAt = startedAt
	s.StoppedAt = stoppedAt
	s.LiveTime = times.Live
	s.PausedTime = times.Paused
	s.DeadTime = times.Dead
	return s
}

func (e *Engine) counters() trigger.RunSummary {
	return trigger.RunSummary{
		RunNumber:          trigger.RunNumber(e.state.run.Load()),
		CandidatesReceived: e.state.candidatesReceived.Load(),
		DecisionsSent:      e.state.decisionsSent.Load(),
		DecisionsFailed:    e.state.decisionsFailed.Load(),
		DecisionsInhibited: e.state.decisionsInhibited.Load(),
		DecisionsPaused:    e.state.decisionsPaused.Load(),
		DecisionsTotal:     e.state.decisionsTotal.Load(),
		LastTriggerNumber:  trigger.TriggerNumber(e.state.lastTriggerNumber.Load()),
	}
}

func (e *Engine) publish(ctx context.Context, event any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.WithError(err).Warn("publish event failed")
	}
}
