package application

import (
	"time"

	"daq-trigger/internal/observability/metrics"
	trigger "daq-trigger/internal/trigger/domain"
)

// Snapshot is a non-blocking view of the engine. Between runs it reports the
// last finished run.
type Snapshot struct {
	Phase              string                `json:"phase"`
	RunNumber          trigger.RunNumber     `json:"run_number"`
	Running            bool                  `json:"running"`
	Paused             bool                  `json:"paused"`
	Busy               bool                  `json:"busy"`
	GateState          string                `json:"gate_state,omitempty"`
	StartedAt          time.Time             `json:"started_at,omitempty"`
	CandidatesReceived uint64                `json:"candidates_received"`
	DecisionsSent      uint64                `json:"decisions_sent"`
	DecisionsFailed    uint64                `json:"decisions_failed"`
	DecisionsInhibited uint64                `json:"decisions_inhibited"`
	DecisionsPaused    uint64                `json:"decisions_paused"`
	DecisionsTotal     uint64                `json:"decisions_total"`
	LastTriggerNumber  trigger.TriggerNumber `json:"last_trigger_number"`
	LiveTime           time.Duration         `json:"live_time"`
	PausedTime         time.Duration         `json:"paused_time"`
	DeadTime           time.Duration         `json:"dead_time"`
}

// Deadtime is the time triggers were suppressed for any reason.
func (s Snapshot) Deadtime() time.Duration {
	return s.PausedTime + s.DeadTime
}

// Snapshot reads the run state without waiting on the decision loop.
func (e *Engine) Snapshot() Snapshot {
	if gate := e.state.gate.Load(); gate != nil && e.state.active.Load() {
		c := e.counters()
		times := gate.Times()
		return Snapshot{
			Phase:              phaseRunning.String(),
			RunNumber:          c.RunNumber,
			Running:            true,
			Paused:             e.state.paused.Load(),
			Busy:               e.state.busy.Load(),
			GateState:          times.State.String(),
			StartedAt:          gate.CreatedAt(),
			CandidatesReceived: c.CandidatesReceived,
			DecisionsSent:      c.DecisionsSent,
			DecisionsFailed:    c.DecisionsFailed,
			DecisionsInhibited: c.DecisionsInhibited,
			DecisionsPaused:    c.DecisionsPaused,
			DecisionsTotal:     c.DecisionsTotal,
			LastTriggerNumber:  c.LastTriggerNumber,
			LiveTime:           times.Live,
			PausedTime:         times.Paused,
			DeadTime:           times.Dead,
		}
	}

	snap := Snapshot{Phase: e.loadPhase().String()}
	if last := e.lastRun.Load(); last != nil {
		snap.RunNumber = last.RunNumber
		snap.StartedAt = last.StartedAt
		snap.CandidatesReceived = last.CandidatesReceived
		snap.DecisionsSent = last.DecisionsSent
		snap.DecisionsFailed = last.DecisionsFailed
		snap.DecisionsInhibited = last.DecisionsInhibited
		snap.DecisionsPaused = last.DecisionsPaused
		snap.DecisionsTotal = last.DecisionsTotal
		snap.LastTriggerNumber = last.LastTriggerNumber
		snap.LiveTime = last.LiveTime
		snap.PausedTime = last.PausedTime
		snap.DeadTime = last.DeadTime
	}
	return snap
}

// LastRun returns the summary of the most recently stopped run, if any.
func (e *Engine) LastRun() (trigger.RunSummary, bool) {
	last := e.lastRun.Load()
	if last == nil {
		return trigger.RunSummary{}, false
	}
	return *last, true
}

// MetricsSample adapts Snapshot for the prometheus collector.
func (e *Engine) MetricsSample() metrics.Sample {
	s := e.Snapshot()
	return metrics.Sample{
		RunNumber:          uint32(s.RunNumber),
		Running:            s.Running,
		Paused:             s.Paused,
		Busy:               s.Busy,
		GateState:          s.GateState,
		CandidatesReceived: s.CandidatesReceived,
		DecisionsSent:      s.DecisionsSent,
		DecisionsFailed:    s.DecisionsFailed,
		DecisionsInhibited: s.DecisionsInhibited,
		DecisionsPaused:    s.DecisionsPaused,
		DecisionsTotal:     s.DecisionsTotal,
		LastTriggerNumber:  uint64(s.LastTriggerNumber),
		LiveSeconds:        s.LiveTime.Seconds(),
		PausedSeconds:      s.PausedTime.Seconds(),
		DeadSeconds:        s.DeadTime.Seconds(),
	}
}

// RecentCandidates returns the retained candidates whose window overlaps [begin, end].
// It returns nil when no history buffer is attached.
func (e *Engine) RecentCandidates(begin, end trigger.Timestamp) []trigger.Candidate {
	if e.history == nil {
		return nil
	}
	intervals := e.history.Query(uint64(begin), uint64(end))
	out := make([]trigger.Candidate, 0, len(intervals))
	for _, i := range intervals {
		out = append(out, i.Payload)
	}
	return out
}
