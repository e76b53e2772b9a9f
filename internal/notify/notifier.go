package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"daq-trigger/internal/eventing"
	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

const (
	eventRunStopped     = "RunStopped"
	eventInhibitChanged = "InhibitChanged"
)

// Clock provides time for dedupe windows.
type Clock interface {
	Now() time.Time
}

// ReportURLResolver returns a report link for a finished run.
type ReportURLResolver func(run trigger.RunNumber) string

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier turns run events into channel messages. End-of-run summaries are
// always sent; busy alerts only with WithInhibitAlerts.
type Notifier struct {
	channel        Channel
	template       *Template
	clock          Clock
	logger         logrus.FieldLogger
	reportURL      ReportURLResolver
	inhibitAlerts  bool
	dedupeWindow   time.Duration
	requestTimeout time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
	wg   sync.WaitGroup
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithReportURLResolver injects a report link resolver.
func WithReportURLResolver(resolver ReportURLResolver) Option {
	return func(n *Notifier) {
		if resolver != nil {
			n.reportURL = resolver
		}
	}
}

// WithInhibitAlerts also notifies when the downstream consumer turns busy.
func WithInhibitAlerts() Option {
	return func(n *Notifier) { n.inhibitAlerts = true }
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithRequestTimeout bounds each channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// NewNotifier constructs a run notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("run notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         logrus.StandardLogger(),
		requestTimeout: 5 * time.Second,
		sent:           make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.WithField("component", "notify")
	return n, nil
}

// Handle is an eventing.Handler. Messages are delivered on a separate
// goroutine; delivery failures are logged, not returned.
func (n *Notifier) Handle(ctx context.Context, env eventing.Envelope) error {
	var data TemplateData
	switch env.EventType {
	case eventRunStopped:
		var event application.RunStopped
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return fmt.Errorf("run notifier: decode %s: %w", env.EventType, err)
		}
		data = n.stoppedData(event)
	case eventInhibitChanged:
		if !n.inhibitAlerts {
			return nil
		}
		var event application.InhibitChanged
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return fmt.Errorf("run notifier: decode %s: %w", env.EventType, err)
		}
		if !event.Busy {
			return nil
		}
		data = TemplateData{
			Event:      "busy",
			EventLabel: "Inhibited",
			RunNumber:  uint32(event.RunNumber),
			Busy:       true,
			Time:       event.OccurredAt.UTC().Format(time.RFC3339),
		}
	default:
		return nil
	}

	content, err := n.template.Render(data)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%d|%s", data.RunNumber, data.Event)
	previous, ok := n.reserve(key, content)
	if !ok {
		return nil
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(context.WithoutCancel(ctx), key, content, previous, data)
	}()
	return nil
}

// Close waits for in-flight notifications.
func (n *Notifier) Close() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, key, content string, previous *sendRecord, data TemplateData) {
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{"run": data.RunNumber, "event": data.Event}).Warn("notification failed")
		n.release(key, previous)
	}
}

func (n *Notifier) stoppedData(event application.RunStopped) TemplateData {
	s := event.Summary
	deadtime := "n/a"
	if d := s.Duration(); d > 0 {
		deadtime = fmt.Sprintf("%.2f%%", 100*float64(s.Deadtime())/float64(d))
	}
	reportURL := ""
	if n.reportURL != nil {
		reportURL = n.reportURL(s.RunNumber)
	}
	return TemplateData{
		Event:             "stopped",
		EventLabel:        "Stopped",
		RunNumber:         uint32(s.RunNumber),
		Duration:          s.Duration().String(),
		Candidates:        s.CandidatesReceived,
		Sent:              s.DecisionsSent,
		Failed:            s.DecisionsFailed,
		Inhibited:         s.DecisionsInhibited,
		Paused:            s.DecisionsPaused,
		LastTriggerNumber: uint64(s.LastTriggerNumber),
		DeadtimePercent:   deadtime,
		Time:              event.OccurredAt.UTC().Format(time.RFC3339),
		ReportURL:         reportURL,
	}
}

// reserve records content as sent under key unless an identical message
// went out within the dedupe window. It returns the record it replaced.
func (n *Notifier) reserve(key, content string) (*sendRecord, bool) {
	now := n.clock.Now()
	hash := hashContent(content)

	n.mu.Lock()
	defer n.mu.Unlock()
	record, exists := n.sent[key]
	if exists && n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return nil, false
	}
	n.sent[key] = sendRecord{at: now, hash: hash}
	if !exists {
		return nil, true
	}
	return &record, true
}

func (n *Notifier) release(key string, previous *sendRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if previous == nil {
		delete(n.sent, key)
		return
	}
	n.sent[key] = *previous
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
