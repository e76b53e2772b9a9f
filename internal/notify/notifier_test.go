package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daq-trigger/internal/eventing"
	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
	err      error
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.contents = append(r.contents, content)
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingChannel) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func stoppedEnvelope(t *testing.T, sent uint64) eventing.Envelope {
	t.Helper()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := application.RunStopped{
		Summary: trigger.RunSummary{
			RunNumber:          42,
			Status:             trigger.RunStatusStopped,
			StartedAt:          start,
			StoppedAt:          start.Add(10 * time.Second),
			CandidatesReceived: 12,
			DecisionsSent:      sent,
			DecisionsInhibited: 2,
			LastTriggerNumber:  trigger.TriggerNumber(sent),
			PausedTime:         time.Second,
			DeadTime:           time.Second,
		},
		OccurredAt: start.Add(10 * time.Second),
	}
	env, err := eventing.BuildEnvelope(event, eventing.Meta{})
	require.NoError(t, err)
	return env
}

func TestWebhookChannelPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	require.NoError(t, err)
	notifier, err := NewNotifier(channel, nil,
		WithReportURLResolver(func(run trigger.RunNumber) string {
			return "http://example.com/api/v1/runs/42/report.pdf"
		}),
	)
	require.NoError(t, err)

	require.NoError(t, notifier.Handle(context.Background(), stoppedEnvelope(t, 10)))

	select {
	case payload := <-payloadCh:
		assert.Equal(t, "text", payload.MsgType)
		content := payload.Text.Content
		for _, expected := range []string{
			"[Run Stopped]",
			"Run: 42",
			"Duration: 10s",
			"Decisions Sent: 10",
			"Inhibited: 2",
			"Deadtime: 20.00%",
			"Time: 2026-03-01T12:00:10Z",
			"Report: http://example.com/api/v1/runs/42/report.pdf",
		} {
			assert.Contains(t, content, expected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannel_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	require.NoError(t, err)
	assert.Error(t, channel.Send(context.Background(), "hello"))

	_, err = NewWebhookChannel("")
	assert.Error(t, err)
}

func TestNotifierDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 10)))
	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 10)))
	notifier.Close()
	assert.Equal(t, 1, channel.Count())

	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 11)))
	notifier.Close()
	assert.Equal(t, 2, channel.Count())

	clock.Add(2 * time.Minute)
	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 11)))
	notifier.Close()
	assert.Equal(t, 3, channel.Count())
}

func TestNotifierFailedSendIsRetried(t *testing.T) {
	channel := &recordingChannel{err: assert.AnError}
	logger, _ := test.NewNullLogger()
	notifier, err := NewNotifier(channel, nil, WithLogger(logger), WithDedupeWindow(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 10)))
	notifier.Close()
	assert.Equal(t, 0, channel.Count())

	channel.mu.Lock()
	channel.err = nil
	channel.mu.Unlock()
	require.NoError(t, notifier.Handle(ctx, stoppedEnvelope(t, 10)))
	notifier.Close()
	assert.Equal(t, 1, channel.Count())
}

func TestNotifierInhibitAlerts(t *testing.T) {
	channel := &recordingChannel{}
	quiet, err := NewNotifier(channel, nil)
	require.NoError(t, err)
	loud, err := NewNotifier(channel, nil, WithInhibitAlerts())
	require.NoError(t, err)

	busy, err := eventing.BuildEnvelope(application.InhibitChanged{RunNumber: 9, Busy: true, OccurredAt: time.Now()}, eventing.Meta{})
	require.NoError(t, err)
	idle, err := eventing.BuildEnvelope(application.InhibitChanged{RunNumber: 9, Busy: false, OccurredAt: time.Now()}, eventing.Meta{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, quiet.Handle(ctx, busy))
	quiet.Close()
	assert.Equal(t, 0, channel.Count())

	require.NoError(t, loud.Handle(ctx, idle))
	require.NoError(t, loud.Handle(ctx, busy))
	loud.Close()
	require.Equal(t, 1, channel.Count())
	assert.Contains(t, channel.Latest(), "[Run Inhibited]")
	assert.Contains(t, channel.Latest(), "Downstream: busy")
}

func TestNotifierIgnoresOtherEventsAndLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	channel := &recordingChannel{err: assert.AnError}
	notifier, err := NewNotifier(channel, nil, WithLogger(logger))
	require.NoError(t, err)

	started, err := eventing.BuildEnvelope(application.RunStarted{RunNumber: 1, OccurredAt: time.Now()}, eventing.Meta{})
	require.NoError(t, err)
	require.NoError(t, notifier.Handle(context.Background(), started))
	assert.Empty(t, hook.AllEntries())

	require.NoError(t, notifier.Handle(context.Background(), stoppedEnvelope(t, 1)))
	notifier.Close()
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "notification failed", hook.LastEntry().Message)
}

func TestNotifierRejectsBadPayload(t *testing.T) {
	notifier, err := NewNotifier(&recordingChannel{}, nil)
	require.NoError(t, err)
	err = notifier.Handle(context.Background(), eventing.Envelope{EventType: "RunStopped", Payload: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestMultiChannelJoinsErrors(t *testing.T) {
	ok := &recordingChannel{}
	bad := &recordingChannel{err: assert.AnError}
	multi := NewMultiChannel(ok, nil, bad)
	err := multi.Send(context.Background(), "x")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, ok.Count())
}
