package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "trigger_"

	resultSuccess = "success"
	resultError   = "error"
	resultTimeout = "timeout"

	inhibitApplied = "applied"
	inhibitIgnored = "ignored"
)

var (
	registerOnce sync.Once

	decisionSendTotal   *prometheus.CounterVec
	decisionSendLatency *prometheus.HistogramVec

	inhibitMessages *prometheus.CounterVec

	lifecycleCommands *prometheus.CounterVec

	timingCandidates *prometheus.CounterVec
)

// Init registers the process-wide trigger metrics on the default registerer.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers the process-wide trigger metrics on reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		decisionSendTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "decision_send_total",
				Help: "Total decision send attempts by result",
			},
			[]string{"result"},
		)
		decisionSendLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "decision_send_latency_seconds",
				Help:    "Decision send latency in seconds",
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"result"},
		)
		inhibitMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inhibit_messages_total",
				Help: "Total busy/idle notifications by outcome",
			},
			[]string{"outcome"},
		)
		lifecycleCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_commands_total",
				Help: "Total lifecycle commands by command and result",
			},
			[]string{"command", "result"},
		)
		timingCandidates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "timing_candidates_total",
				Help: "Total timing signals converted to candidates by result",
			},
			[]string{"result"},
		)

		reg.MustRegister(
			decisionSendTotal,
			decisionSendLatency,
			inhibitMessages,
			lifecycleCommands,
			timingCandidates,
		)
	})
}

// ObserveDecisionSend records a decision send attempt.
func ObserveDecisionSend(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if decisionSendTotal != nil {
		decisionSendTotal.WithLabelValues(result).Inc()
	}
	if decisionSendLatency != nil {
		decisionSendLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncInhibit counts a busy/idle notification.
func IncInhibit(applied bool) {
	outcome := inhibitIgnored
	if applied {
		outcome = inhibitApplied
	}
	if inhibitMessages != nil {
		inhibitMessages.WithLabelValues(outcome).Inc()
	}
}

// IncLifecycle counts a lifecycle command.
func IncLifecycle(command string, err error) {
	if command == "" {
		command = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if lifecycleCommands != nil {
		lifecycleCommands.WithLabelValues(command, result).Inc()
	}
}

// IncTimingCandidate counts a converted or rejected timing signal.
func IncTimingCandidate(err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if timingCandidates != nil {
		timingCandidates.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultTimeout = resultTimeout
)
