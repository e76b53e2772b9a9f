package application

import (
	"time"

	trigger "daq-trigger/internal/trigger/domain"
)

// RunStarted is published when a run begins.
type RunStarted struct {
	RunNumber  trigger.RunNumber `json:"run_number"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RunStopped is published after the loop has drained and the run is closed.
type RunStopped struct {
	Summary    trigger.RunSummary `json:"summary"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// TriggersPaused is published when the operator disables triggers.
type TriggersPaused struct {
	RunNumber  trigger.RunNumber `json:"run_number"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// TriggersResumed is published when the operator enables triggers.
type TriggersResumed struct {
	RunNumber  trigger.RunNumber `json:"run_number"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// InhibitChanged is published when the downstream busy flag flips.
type InhibitChanged struct {
	RunNumber  trigger.RunNumber `json:"run_number"`
	Busy       bool              `json:"busy"`
	OccurredAt time.Time         `json:"occurred_at"`
}
