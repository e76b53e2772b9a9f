package timing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trigger "daq-trigger/internal/trigger/domain"
	"daq-trigger/internal/trigger/infrastructure/memory"
)

func configuredMaker(t *testing.T, opts ...Option) *Maker {
	t.Helper()
	m := NewMaker(opts...)
	require.NoError(t, m.Configure([]SignalConf{
		{SignalType: 1, TimeBefore: 1000, TimeAfter: 2000},
		{SignalType: 2, TimeBefore: 10, TimeAfter: 20},
		{SignalType: 0x1ff, TimeBefore: 0, TimeAfter: 0},
	}))
	return m
}

func TestMaker_ConvertAppliesOffsets(t *testing.T) {
	m := configuredMaker(t)

	c, err := m.Convert(TimeStampedData{Timestamp: 50000, SignalType: 1})
	require.NoError(t, err)
	assert.Equal(t, trigger.Candidate{
		TimeStart:     49000,
		TimeEnd:       52000,
		TimeCandidate: 50000,
		Type:          trigger.TypeTiming,
		DetID:         1,
	}, c)
}

func TestMaker_ConvertClampsStartAtZero(t *testing.T) {
	m := configuredMaker(t)

	c, err := m.Convert(TimeStampedData{Timestamp: 500, SignalType: 1})
	require.NoError(t, err)
	assert.Equal(t, trigger.Timestamp(0), c.TimeStart)
	assert.Equal(t, trigger.Timestamp(2500), c.TimeEnd)
}

func TestMaker_ConvertSaturatesEndAtMaxTimestamp(t *testing.T) {
	m := configuredMaker(t)

	c, err := m.Convert(TimeStampedData{Timestamp: math.MaxUint64 - 100, SignalType: 1})
	require.NoError(t, err)
	assert.Equal(t, trigger.Timestamp(math.MaxUint64-1100), c.TimeStart)
	assert.Equal(t, trigger.Timestamp(math.MaxUint64), c.TimeEnd)

	c, err = m.Convert(TimeStampedData{Timestamp: math.MaxUint64 - 2000, SignalType: 1})
	require.NoError(t, err)
	assert.Equal(t, trigger.Timestamp(math.MaxUint64), c.TimeEnd)
}

func TestMaker_ConvertUnknownSignal(t *testing.T) {
	m := configuredMaker(t)

	_, err := m.Convert(TimeStampedData{Timestamp: 1, SignalType: 9})
	assert.ErrorIs(t, err, ErrUnknownSignalType)
}

func TestMaker_PassthroughUsesLowByteOfSignal(t *testing.T) {
	m := configuredMaker(t)

	c, err := m.Convert(TimeStampedData{Timestamp: 1, SignalType: 0x1ff})
	require.NoError(t, err)
	assert.Equal(t, trigger.TriggerType(0xff), trigger.DeriveTriggerType(c, true))
}

func TestMaker_ConfigureErrorsKeepPreviousTable(t *testing.T) {
	m := configuredMaker(t)

	assert.ErrorIs(t, m.Configure(nil), ErrNoSignals)
	assert.ErrorIs(t, m.Configure([]SignalConf{{SignalType: 3}, {SignalType: 3}}), ErrDuplicateSignal)

	_, err := m.Convert(TimeStampedData{Timestamp: 5000, SignalType: 2})
	assert.NoError(t, err)
}

func TestMaker_RunConvertsAndSkipsUnknown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := memory.NewQueue[TimeStampedData](8)
	require.NoError(t, err)
	sink, err := memory.NewQueue[trigger.Candidate](8)
	require.NoError(t, err)

	m := configuredMaker(t, WithQueueTimeout(5*time.Millisecond))
	for _, d := range []TimeStampedData{
		{Timestamp: 5000, SignalType: 2},
		{Timestamp: 6000, SignalType: 42},
		{Timestamp: 7000, SignalType: 1},
	} {
		require.NoError(t, src.Send(ctx, d, 0))
	}

	done := make(chan struct{})
	go func() {
		m.Run(ctx, src, sink)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.Len() == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	got := sink.Drain()
	assert.Equal(t, trigger.Timestamp(5000), got[0].TimeCandidate)
	assert.Equal(t, trigger.Timestamp(7000), got[1].TimeCandidate)
}

type stallingSink struct {
	mu       sync.Mutex
	failures int
	got      []trigger.Candidate
}

func (s *stallingSink) Send(_ context.Context, c trigger.Candidate, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("queue full")
	}
	s.got = append(s.got, c)
	return nil
}

func (s *stallingSink) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestMaker_RunRetriesPushWithWarning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, hook := test.NewNullLogger()
	src, err := memory.NewQueue[TimeStampedData](1)
	require.NoError(t, err)
	require.NoError(t, src.Send(ctx, TimeStampedData{Timestamp: 5000, SignalType: 2}, 0))
	sink := &stallingSink{failures: 2}

	m := configuredMaker(t, WithQueueTimeout(time.Millisecond), WithLogger(logger))
	done := make(chan struct{})
	go func() {
		m.Run(ctx, src, sink)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.delivered() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}
