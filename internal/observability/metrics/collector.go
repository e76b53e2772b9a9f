package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sample is a point-in-time view of the decision engine.
type Sample struct {
	RunNumber          uint32
	Running            bool
	Paused             bool
	Busy               bool
	GateState          string
	CandidatesReceived uint64
	DecisionsSent      uint64
	DecisionsFailed    uint64
	DecisionsInhibited uint64
	DecisionsPaused    uint64
	DecisionsTotal     uint64
	LastTriggerNumber  uint64
	LiveSeconds        float64
	PausedSeconds      float64
	DeadSeconds        float64
}

var gateStates = []string{"live", "paused", "dead"}

// RunCollector exports engine state at scrape time.
type RunCollector struct {
	sample func() Sample

	runNumber  *prometheus.Desc
	running    *prometheus.Desc
	paused     *prometheus.Desc
	busy       *prometheus.Desc
	gateState  *prometheus.Desc
	candidates *prometheus.Desc
	decisions  *prometheus.Desc
	lastNumber *prometheus.Desc
	livetime   *prometheus.Desc
}

// NewRunCollector builds a collector reading sample on every scrape.
func NewRunCollector(sample func() Sample) *RunCollector {
	return &RunCollector{
		sample: sample,
		runNumber: prometheus.NewDesc(metricPrefix+"run_number",
			"Current or last run number", nil, nil),
		running: prometheus.NewDesc(metricPrefix+"running",
			"1 while a run is in progress", nil, nil),
		paused: prometheus.NewDesc(metricPrefix+"paused",
			"1 while triggers are paused", nil, nil),
		busy: prometheus.NewDesc(metricPrefix+"busy",
			"1 while the downstream consumer reports busy", nil, nil),
		gateState: prometheus.NewDesc(metricPrefix+"gate_state",
			"1 for the current gating state", []string{"state"}, nil),
		candidates: prometheus.NewDesc(metricPrefix+"run_candidates_received",
			"Candidates received in the current or last run", nil, nil),
		decisions: prometheus.NewDesc(metricPrefix+"run_decisions",
			"Decisions in the current or last run by outcome", []string{"outcome"}, nil),
		lastNumber: prometheus.NewDesc(metricPrefix+"run_last_trigger_number",
			"Last trigger number sent in the current or last run", nil, nil),
		livetime: prometheus.NewDesc(metricPrefix+"run_livetime_seconds",
			"Time spent in each gating state in the current or last run", []string{"state"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runNumber
	ch <- c.running
	ch <- c.paused
	ch <- c.busy
	ch <- c.gateState
	ch <- c.candidates
	ch <- c.decisions
	ch <- c.lastNumber
	ch <- c.livetime
}

// Collect implements prometheus.Collector.
func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.sample == nil {
		return
	}
	s := c.sample()

	ch <- prometheus.MustNewConstMetric(c.runNumber, prometheus.GaugeValue, float64(s.RunNumber))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, boolValue(s.Running))
	ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, boolValue(s.Paused))
	ch <- prometheus.MustNewConstMetric(c.busy, prometheus.GaugeValue, boolValue(s.Busy))
	for _, state := range gateStates {
		ch <- prometheus.MustNewConstMetric(c.gateState, prometheus.GaugeValue, boolValue(s.GateState == state), state)
	}
	ch <- prometheus.MustNewConstMetric(c.candidates, prometheus.GaugeValue, float64(s.CandidatesReceived))
	for outcome, value := range map[string]uint64{
		"sent":      s.DecisionsSent,
		"failed":    s.DecisionsFailed,
		"inhibited": s.DecisionsInhibited,
		"paused":    s.DecisionsPaused,
		"total":     s.DecisionsTotal,
	} {
		ch <- prometheus.MustNewConstMetric(c.decisions, prometheus.GaugeValue, float64(value), outcome)
	}
	ch <- prometheus.MustNewConstMetric(c.lastNumber, prometheus.GaugeValue, float64(s.LastTriggerNumber))
	ch <- prometheus.MustNewConstMetric(c.livetime, prometheus.GaugeValue, s.LiveSeconds, "live")
	ch <- prometheus.MustNewConstMetric(c.livetime, prometheus.GaugeValue, s.PausedSeconds, "paused")
	ch <- prometheus.MustNewConstMetric(c.livetime, prometheus.GaugeValue, s.DeadSeconds, "dead")
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
