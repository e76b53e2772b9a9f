package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
	"daq-trigger/internal/trigger/infrastructure/memory"
	windowing "daq-trigger/internal/windowing/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

// flakySink fails every failEvery-th send.
type flakySink struct {
	calls     atomic.Int64
	failEvery int64
	mu        sync.Mutex
	delivered []trigger.Decision
}

func (s *flakySink) Send(_ context.Context, d trigger.Decision, _ time.Duration) error {
	n := s.calls.Add(1)
	if s.failEvery > 0 && n%s.failEvery == 0 {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	s.delivered = append(s.delivered, d)
	s.mu.Unlock()
	return nil
}

func (s *flakySink) Delivered() []trigger.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]trigger.Decision(nil), s.delivered...)
}

type flakyConnections struct {
	*memory.Registry
	sink *flakySink
}

func (c flakyConnections) DecisionSink(string) (application.DecisionSink, error) {
	return c.sink, nil
}

type harness struct {
	engine     *application.Engine
	candidates *memory.Queue[trigger.Candidate]
	decisions  *memory.Queue[trigger.Decision]
	inhibits   *memory.InhibitFeed
	clock      *fakeClock
	store      *memory.RunRepository
	events     *recordingPublisher
	logs       *test.Hook
}

func newHarness(t *testing.T, wrap func(*memory.Registry) application.Connections) *harness {
	t.Helper()
	candidates, err := memory.NewQueue[trigger.Candidate](1024)
	require.NoError(t, err)
	decisions, err := memory.NewQueue[trigger.Decision](1024)
	require.NoError(t, err)
	inhibits := memory.NewInhibitFeed()

	reg := memory.NewRegistry()
	reg.AddCandidateQueue("candidates", candidates)
	reg.AddDecisionQueue("decisions", decisions)
	reg.AddInhibitFeed("busy", inhibits)

	var conns application.Connections = reg
	if wrap != nil {
		conns = wrap(reg)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		candidates: candidates,
		decisions:  decisions,
		inhibits:   inhibits,
		clock:      newFakeClock(),
		store:      memory.NewRunRepository(),
		events:     &recordingPublisher{},
		logs:       hook,
	}
	h.engine, err = application.NewEngine(conns,
		application.WithClock(h.clock),
		application.WithRunStore(h.store),
		application.WithEventPublisher(h.events),
		application.WithLogger(logger),
	)
	require.NoError(t, err)
	return h
}

func twoLinkParams() application.ConfParams {
	return application.ConfParams{
		Links: []application.LinkConf{
			{System: "TPC", Region: 0, Element: 1},
			{System: "TPC", Region: 0, Element: 2},
		},
		CandidateConnection: "candidates",
		DecisionConnection:  "decisions",
		InhibitConnection:   "busy",
		PollTimeoutMS:       5,
	}
}

func (h *harness) push(t *testing.T, c trigger.Candidate) {
	t.Helper()
	require.NoError(t, h.candidates.Send(context.Background(), c, time.Second))
}

func (h *harness) startRun(t *testing.T, run trigger.RunNumber, params application.ConfParams) {
	t.Helper()
	require.NoError(t, h.engine.Configure(params))
	require.NoError(t, h.engine.Start(context.Background(), run))
}

func TestEngine_SingleCandidateProducesDecision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	h.push(t, trigger.Candidate{TimeStart: 100, TimeEnd: 200, TimeCandidate: 150, Type: trigger.TypeSupernova})
	require.NoError(t, h.engine.Stop(ctx))

	got := h.decisions.Drain()
	require.Len(t, got, 1)
	link1, _ := trigger.NewLink("TPC", 0, 1)
	link2, _ := trigger.NewLink("TPC", 0, 2)
	assert.Equal(t, trigger.Decision{
		TriggerNumber:    1,
		RunNumber:        7,
		TriggerTimestamp: 150,
		TriggerType:      1,
		ReadoutType:      trigger.ReadoutLocalized,
		Components: []trigger.ComponentRequest{
			{Component: link1, WindowBegin: 100, WindowEnd: 200},
			{Component: link2, WindowBegin: 100, WindowEnd: 200},
		},
	}, got[0])

	last, ok := h.engine.LastRun()
	require.True(t, ok)
	assert.Equal(t, uint64(1), last.CandidatesReceived)
	assert.Equal(t, uint64(1), last.DecisionsSent)
	assert.Equal(t, uint64(1), last.DecisionsTotal)
	assert.Equal(t, trigger.TriggerNumber(1), last.LastTriggerNumber)
}

func TestEngine_PausedCandidatesAreCountedNotSent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))
	require.NoError(t, h.engine.Pause(ctx))

	for i := 0; i < 3; i++ {
		h.push(t, trigger.Candidate{TimeStart: 10, TimeEnd: 20, TimeCandidate: 15})
	}
	require.NoError(t, h.engine.Stop(ctx))

	assert.Zero(t, h.decisions.Len())
	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(3), last.DecisionsPaused)
	assert.Equal(t, uint64(3), last.DecisionsTotal)
	assert.Zero(t, last.DecisionsSent)
}

func TestEngine_StartsPaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 3, twoLinkParams())

	snap := h.engine.Snapshot()
	assert.True(t, snap.Running)
	assert.True(t, snap.Paused)
	assert.Equal(t, "paused", snap.GateState)

	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: 1})
	require.NoError(t, h.engine.Stop(ctx))
	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(1), last.DecisionsPaused)
}

func TestEngine_BusyInhibitsAndMarksDead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 7, Busy: true})
	snap := h.engine.Snapshot()
	assert.True(t, snap.Busy)
	assert.Equal(t, "dead", snap.GateState)

	h.push(t, trigger.Candidate{TimeStart: 100, TimeEnd: 200, TimeCandidate: 150})
	require.NoError(t, h.engine.Stop(ctx))

	assert.Zero(t, h.decisions.Len())
	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(1), last.DecisionsInhibited)
	assert.Equal(t, uint64(1), last.DecisionsTotal)

	var warned bool
	for _, entry := range h.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "trigger inhibited: downstream is busy" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestEngine_BusyClearedDoesNotReturnToLive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 7, Busy: true})
	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 7, Busy: false})

	snap := h.engine.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, "dead", snap.GateState)

	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: 1})
	require.NoError(t, h.engine.Stop(ctx))
	assert.Equal(t, 1, len(h.decisions.Drain()))
}

func TestEngine_InhibitForOtherRunIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 8, Busy: true})
	assert.False(t, h.engine.Snapshot().Busy)
	assert.Equal(t, "live", h.engine.Snapshot().GateState)

	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: 1})
	require.NoError(t, h.engine.Stop(ctx))

	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(1), last.DecisionsSent)
	assert.Zero(t, last.DecisionsInhibited)
}

func TestEngine_InhibitAfterStopIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())
	require.NoError(t, h.engine.Stop(ctx))

	assert.Zero(t, h.inhibits.Subscribers())
	h.engine.HandleInhibit(ctx, trigger.Inhibit{RunNumber: 7, Busy: true})
	assert.False(t, h.engine.Snapshot().Busy)
}

func TestEngine_LivetimeAccounting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 7, twoLinkParams())

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.engine.Resume(ctx))
	h.clock.Advance(5 * time.Second)
	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 7, Busy: true})
	h.clock.Advance(time.Second)
	require.NoError(t, h.engine.Stop(ctx))

	last, _ := h.engine.LastRun()
	assert.Equal(t, 5*time.Second, last.LiveTime)
	assert.Equal(t, 2*time.Second, last.PausedTime)
	assert.Equal(t, time.Second, last.DeadTime)
	assert.Equal(t, 3*time.Second, last.Deadtime())
	assert.Equal(t, 8*time.Second, last.Duration())

	stored, err := h.store.GetRun(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, trigger.RunStatusStopped, stored.Status)
	assert.Equal(t, last, *stored)
}

func TestEngine_TriggerNumbersContiguousUnderFailuresAndToggling(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{failEvery: 3}
	h := newHarness(t, func(reg *memory.Registry) application.Connections {
		return flakyConnections{Registry: reg, sink: sink}
	})
	h.startRun(t, 11, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	const n = 300
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = h.engine.Pause(ctx)
			h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 11, Busy: i%2 == 0})
			_ = h.engine.Resume(ctx)
		}
	}()
	for i := 0; i < n; i++ {
		h.push(t, trigger.Candidate{TimeStart: trigger.Timestamp(i), TimeEnd: trigger.Timestamp(i + 1), TimeCandidate: trigger.Timestamp(i)})
	}
	wg.Wait()
	require.NoError(t, h.engine.Stop(ctx))

	delivered := sink.Delivered()
	for i, d := range delivered {
		assert.Equal(t, trigger.TriggerNumber(i+1), d.TriggerNumber)
	}

	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(n), last.CandidatesReceived)
	assert.Equal(t, uint64(n), last.DecisionsTotal)
	assert.Equal(t, last.DecisionsTotal,
		last.DecisionsSent+last.DecisionsFailed+last.DecisionsPaused+last.DecisionsInhibited)
	assert.Equal(t, uint64(len(delivered)), last.DecisionsSent)
	assert.Equal(t, trigger.TriggerNumber(last.DecisionsSent), last.LastTriggerNumber)
}

func TestEngine_FailedSendDoesNotAdvanceTriggerNumber(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{failEvery: 2}
	h := newHarness(t, func(reg *memory.Registry) application.Connections {
		return flakyConnections{Registry: reg, sink: sink}
	})
	h.startRun(t, 1, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	for i := 0; i < 4; i++ {
		h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: trigger.Timestamp(i)})
	}
	require.NoError(t, h.engine.Stop(ctx))

	delivered := sink.Delivered()
	require.Len(t, delivered, 2)
	assert.Equal(t, trigger.TriggerNumber(1), delivered[0].TriggerNumber)
	assert.Equal(t, trigger.Timestamp(0), delivered[0].TriggerTimestamp)
	assert.Equal(t, trigger.TriggerNumber(2), delivered[1].TriggerNumber)
	assert.Equal(t, trigger.Timestamp(2), delivered[1].TriggerTimestamp)

	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(2), last.DecisionsFailed)
}

func TestEngine_PreservesCandidateOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 2, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	for i := 50; i > 0; i-- {
		h.push(t, trigger.Candidate{TimeStart: 0, TimeEnd: 1, TimeCandidate: trigger.Timestamp(i)})
	}
	require.NoError(t, h.engine.Stop(ctx))

	got := h.decisions.Drain()
	require.Len(t, got, 50)
	for i, d := range got {
		assert.Equal(t, trigger.Timestamp(50-i), d.TriggerTimestamp)
	}
}

func TestEngine_NewRunResetsCounters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 1, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))
	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: 1})
	require.NoError(t, h.engine.Stop(ctx))

	require.NoError(t, h.engine.Start(ctx, 2))
	require.NoError(t, h.engine.Resume(ctx))
	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: 1})
	require.NoError(t, h.engine.Stop(ctx))

	got := h.decisions.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, trigger.TriggerNumber(1), got[1].TriggerNumber)
	assert.Equal(t, trigger.RunNumber(2), got[1].RunNumber)

	runs, err := h.store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEngine_TriggerTypePassthrough(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	params := twoLinkParams()
	params.TriggerTypePassthrough = true
	h.startRun(t, 7, params)
	require.NoError(t, h.engine.Resume(ctx))

	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, Type: trigger.TypeTiming, DetID: 0x1234})
	h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, Type: trigger.TypeSupernova})
	require.NoError(t, h.engine.Stop(ctx))

	got := h.decisions.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, trigger.TriggerType(0x34), got[0].TriggerType)
	assert.Equal(t, trigger.TriggerType(uint16(trigger.TypeSupernova)<<8), got[1].TriggerType)
}

func TestEngine_LifecycleOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.engine.Start(ctx, 1), application.ErrNotConfigured)
	assert.ErrorIs(t, h.engine.Stop(ctx), application.ErrNotRunning)
	assert.ErrorIs(t, h.engine.Pause(ctx), application.ErrNotRunning)
	assert.ErrorIs(t, h.engine.Resume(ctx), application.ErrNotRunning)
	require.NoError(t, h.engine.Scrap())

	h.startRun(t, 1, twoLinkParams())
	assert.ErrorIs(t, h.engine.Start(ctx, 2), application.ErrAlreadyRunning)
	assert.ErrorIs(t, h.engine.Configure(twoLinkParams()), application.ErrAlreadyRunning)
	assert.ErrorIs(t, h.engine.Scrap(), application.ErrAlreadyRunning)
	require.NoError(t, h.engine.Stop(ctx))
	assert.ErrorIs(t, h.engine.Stop(ctx), application.ErrNotRunning)

	require.NoError(t, h.engine.Scrap())
	require.NoError(t, h.engine.Scrap())
	assert.Equal(t, "unconfigured", h.engine.Snapshot().Phase)
	assert.ErrorIs(t, h.engine.Start(ctx, 2), application.ErrNotConfigured)
}

func TestEngine_ConfigureErrorsLeaveEngineUnconfigured(t *testing.T) {
	h := newHarness(t, nil)

	noLinks := twoLinkParams()
	noLinks.Links = nil
	badSystem := twoLinkParams()
	badSystem.Links[1].System = "Calorimeter"
	missing := twoLinkParams()
	missing.InhibitConnection = ""
	unknown := twoLinkParams()
	unknown.CandidateConnection = "elsewhere"
	negative := twoLinkParams()
	negative.SendTimeoutMS = -1

	for _, tc := range []struct {
		name   string
		params application.ConfParams
		want   error
	}{
		{"no links", noLinks, application.ErrNoLinks},
		{"unknown system", badSystem, trigger.ErrUnknownSystemType},
		{"missing connection", missing, application.ErrMissingConnection},
		{"unknown connection", unknown, application.ErrUnknownConnection},
		{"negative timeout", negative, application.ErrInvalidTimeout},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, h.engine.Configure(twoLinkParams()))
			require.Equal(t, "configured", h.engine.Snapshot().Phase)

			assert.ErrorIs(t, h.engine.Configure(tc.params), tc.want)
			assert.Equal(t, "unconfigured", h.engine.Snapshot().Phase)
			assert.ErrorIs(t, h.engine.Start(context.Background(), 1), application.ErrNotConfigured)
		})
	}
}

// unconfirmedSink reports every second send as unconfirmed although the
// decision still reaches the consumer.
type unconfirmedSink struct {
	flakySink
}

func (s *unconfirmedSink) Send(ctx context.Context, d trigger.Decision, timeout time.Duration) error {
	n := s.calls.Load() + 1
	_ = s.flakySink.Send(ctx, d, timeout)
	if n%2 == 0 {
		return fmt.Errorf("broker slow: %w", application.ErrDeliveryUnconfirmed)
	}
	return nil
}

type unconfirmedConnections struct {
	*memory.Registry
	sink *unconfirmedSink
}

func (c unconfirmedConnections) DecisionSink(string) (application.DecisionSink, error) {
	return c.sink, nil
}

func TestEngine_UnconfirmedDeliveryConsumesTriggerNumber(t *testing.T) {
	ctx := context.Background()
	sink := &unconfirmedSink{}
	h := newHarness(t, func(reg *memory.Registry) application.Connections {
		return unconfirmedConnections{Registry: reg, sink: sink}
	})
	h.startRun(t, 1, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))

	for i := 0; i < 4; i++ {
		h.push(t, trigger.Candidate{TimeStart: 1, TimeEnd: 2, TimeCandidate: trigger.Timestamp(i)})
	}
	require.NoError(t, h.engine.Stop(ctx))

	delivered := sink.Delivered()
	require.Len(t, delivered, 4)
	for i, d := range delivered {
		assert.Equal(t, trigger.TriggerNumber(i+1), d.TriggerNumber)
	}

	last, _ := h.engine.LastRun()
	assert.Equal(t, uint64(2), last.DecisionsSent)
	assert.Equal(t, uint64(2), last.DecisionsFailed)
	assert.Equal(t, trigger.TriggerNumber(4), last.LastTriggerNumber)
}

// ctxStore records the context error seen by RecordSummary.
type ctxStore struct {
	*memory.RunRepository
	mu  sync.Mutex
	err error
}

func (s *ctxStore) RecordSummary(ctx context.Context, summary trigger.RunSummary) error {
	s.mu.Lock()
	s.err = ctx.Err()
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.RunRepository.RecordSummary(ctx, summary)
}

func TestEngine_StopRecordsSummaryAfterCallerCancels(t *testing.T) {
	candidates, err := memory.NewQueue[trigger.Candidate](8)
	require.NoError(t, err)
	decisions, err := memory.NewQueue[trigger.Decision](8)
	require.NoError(t, err)
	reg := memory.NewRegistry()
	reg.AddCandidateQueue("candidates", candidates)
	reg.AddDecisionQueue("decisions", decisions)
	reg.AddInhibitFeed("busy", memory.NewInhibitFeed())

	store := &ctxStore{RunRepository: memory.NewRunRepository()}
	events := &recordingPublisher{}
	engine, err := application.NewEngine(reg, application.WithRunStore(store), application.WithEventPublisher(events))
	require.NoError(t, err)
	require.NoError(t, engine.Configure(twoLinkParams()))
	require.NoError(t, engine.Start(context.Background(), 3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, engine.Stop(ctx))

	assert.NoError(t, store.err)
	stored, err := store.GetRun(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, trigger.RunStatusStopped, stored.Status)
	assert.IsType(t, application.RunStopped{}, events.Events()[len(events.Events())-1])
}

func TestEngine_StartFailsForUnknownSink(t *testing.T) {
	h := newHarness(t, nil)
	params := twoLinkParams()
	params.DecisionConnection = "missing"
	require.NoError(t, h.engine.Configure(params))

	err := h.engine.Start(context.Background(), 1)
	assert.ErrorIs(t, err, application.ErrUnknownConnection)
	assert.Equal(t, "configured", h.engine.Snapshot().Phase)
	assert.False(t, h.engine.Snapshot().Running)
}

func TestEngine_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 5, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))
	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 5, Busy: true})
	h.inhibits.Publish(ctx, trigger.Inhibit{RunNumber: 5, Busy: true})
	require.NoError(t, h.engine.Pause(ctx))
	require.NoError(t, h.engine.Stop(ctx))

	events := h.events.Events()
	require.Len(t, events, 5)
	assert.IsType(t, application.RunStarted{}, events[0])
	assert.IsType(t, application.TriggersResumed{}, events[1])
	assert.Equal(t, application.InhibitChanged{RunNumber: 5, Busy: true, OccurredAt: h.clock.Now()}, events[2])
	assert.IsType(t, application.TriggersPaused{}, events[3])
	stopped, ok := events[4].(application.RunStopped)
	require.True(t, ok)
	assert.Equal(t, trigger.RunNumber(5), stopped.Summary.RunNumber)
}

func TestEngine_MetricsSampleMirrorsSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.startRun(t, 9, twoLinkParams())
	require.NoError(t, h.engine.Resume(ctx))
	h.clock.Advance(4 * time.Second)

	sample := h.engine.MetricsSample()
	assert.Equal(t, uint32(9), sample.RunNumber)
	assert.True(t, sample.Running)
	assert.Equal(t, "live", sample.GateState)
	assert.InDelta(t, 4.0, sample.LiveSeconds, 1e-9)

	require.NoError(t, h.engine.Stop(ctx))
	sample = h.engine.MetricsSample()
	assert.False(t, sample.Running)
	assert.Equal(t, uint32(9), sample.RunNumber)
	assert.InDelta(t, 4.0, sample.LiveSeconds, 1e-9)
}

func TestNewEngine_RequiresConnections(t *testing.T) {
	_, err := application.NewEngine(nil)
	assert.ErrorIs(t, err, application.ErrNilConnections)
}

func TestEngine_CandidateHistory(t *testing.T) {
	ctx := context.Background()
	history, err := windowing.NewBuffer[trigger.Candidate](2)
	require.NoError(t, err)

	candidates, err := memory.NewQueue[trigger.Candidate](8)
	require.NoError(t, err)
	decisions, err := memory.NewQueue[trigger.Decision](8)
	require.NoError(t, err)
	reg := memory.NewRegistry()
	reg.AddCandidateQueue("candidates", candidates)
	reg.AddDecisionQueue("decisions", decisions)
	reg.AddInhibitFeed("busy", memory.NewInhibitFeed())

	engine, err := application.NewEngine(reg, application.WithCandidateHistory(history))
	require.NoError(t, err)
	assert.Empty(t, engine.RecentCandidates(0, 1000))

	require.NoError(t, engine.Configure(twoLinkParams()))
	require.NoError(t, engine.Start(ctx, 1))
	for _, start := range []trigger.Timestamp{10, 20, 30} {
		require.NoError(t, candidates.Send(ctx, trigger.Candidate{TimeStart: start, TimeEnd: start + 5, TimeCandidate: start}, time.Second))
	}
	require.NoError(t, engine.Stop(ctx))

	got := engine.RecentCandidates(0, 1000)
	require.Len(t, got, 2)
	assert.Equal(t, trigger.Timestamp(20), got[0].TimeStart)
	assert.Equal(t, trigger.Timestamp(30), got[1].TimeStart)

	got = engine.RecentCandidates(24, 26)
	require.Len(t, got, 1)
	assert.Equal(t, trigger.Timestamp(20), got[0].TimeStart)
}
