package trigger

import "time"

const (
	RunStatusRunning = "running"
	RunStatusStopped = "stopped"
)

// RunSummary is the bookkeeping of one run, final once Status is stopped.
type RunSummary struct {
	RunNumber          RunNumber     `json:"run_number"`
	Status             string        `json:"status"`
	StartedAt          time.Time     `json:"started_at"`
	StoppedAt          time.Time     `json:"stopped_at,omitempty"`
	CandidatesReceived uint64        `json:"candidates_received"`
	DecisionsSent      uint64        `json:"decisions_sent"`
	DecisionsFailed    uint64        `json:"decisions_failed"`
	DecisionsInhibited uint64        `json:"decisions_inhibited"`
	DecisionsPaused    uint64        `json:"decisions_paused"`
	DecisionsTotal     uint64        `json:"decisions_total"`
	LastTriggerNumber  TriggerNumber `json:"last_trigger_number"`
	LiveTime           time.Duration `json:"live_time"`
	PausedTime         time.Duration `json:"paused_time"`
	DeadTime           time.Duration `json:"dead_time"`
}

// Deadtime is the time triggers were suppressed during the run.
func (s RunSummary) Deadtime() time.Duration {
	return s.PausedTime + s.DeadTime
}

// Duration is the time between start and stop, or zero while running.
func (s RunSummary) Duration() time.Duration {
	if s.StoppedAt.IsZero() {
		return 0
	}
	return s.StoppedAt.Sub(s.StartedAt)
}
