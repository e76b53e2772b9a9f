package application

import (
	"context"

	"github.com/sirupsen/logrus"

	"daq-trigger/internal/observability/metrics"
	trigger "daq-trigger/internal/trigger/domain"
)

// HandleInhibit applies a busy/idle notification. Messages for other runs,
// or received while no run is active, are ignored.
func (e *Engine) HandleInhibit(ctx context.Context, msg trigger.Inhibit) {
	if !e.state.active.Load() || trigger.RunNumber(e.state.run.Load()) != msg.RunNumber {
		metrics.IncInhibit(false)
		e.logger.WithFields(logrus.Fields{
			"run":     msg.RunNumber,
			"current": e.state.run.Load(),
			"busy":    msg.Busy,
		}).Debug("ignoring inhibit for another run")
		return
	}
	gate := e.state.gate.Load()
	if gate == nil {
		metrics.IncInhibit(false)
		return
	}

	previous := e.state.busy.Swap(msg.Busy)
	gate.MarkBusy(msg.Busy)
	metrics.IncInhibit(true)
	if previous == msg.Busy {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"run":  msg.RunNumber,
		"busy": msg.Busy,
	}).Info("downstream busy state changed")
	e.publish(ctx, InhibitChanged{RunNumber: msg.RunNumber, Busy: msg.Busy, OccurredAt: e.clock.Now()})
}
