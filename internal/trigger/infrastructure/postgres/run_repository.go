package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	trigger "daq-trigger/internal/trigger/domain"
)

const defaultRunLimit = 100

var errNilDB = errors.New("run repo: nil db")

// RunRepository persists run summaries.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RecordStart inserts a running row, resetting any earlier row for the same run number.
func (r *RunRepository) RecordStart(ctx context.Context, run trigger.RunNumber, startedAt time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trigger_runs (run_number, status, started_at, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (run_number)
DO UPDATE SET status = EXCLUDED.status, started_at = EXCLUDED.started_at, stopped_at = NULL,
	candidates_received = 0, decisions_sent = 0, decisions_failed = 0, decisions_inhibited = 0,
	decisions_paused = 0, decisions_total = 0, last_trigger_number = 0,
	live_ns = 0, paused_ns = 0, dead_ns = 0, updated_at = NOW()`,
		int64(run), trigger.RunStatusRunning, startedAt.UTC())
	return err
}

// RecordSummary upserts the final summary of a run.
func (r *RunRepository) RecordSummary(ctx context.Context, s trigger.RunSummary) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	var stoppedAt sql.NullTime
	if !s.StoppedAt.IsZero() {
		stoppedAt = sql.NullTime{Time: s.StoppedAt.UTC(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trigger_runs (
	run_number, status, started_at, stopped_at, candidates_received, decisions_sent,
	decisions_failed, decisions_inhibited, decisions_paused, decisions_total,
	last_trigger_number, live_ns, paused_ns, dead_ns, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
ON CONFLICT (run_number)
DO UPDATE SET status = EXCLUDED.status, started_at = EXCLUDED.started_at, stopped_at = EXCLUDED.stopped_at,
	candidates_received = EXCLUDED.candidates_received, decisions_sent = EXCLUDED.decisions_sent,
	decisions_failed = EXCLUDED.decisions_failed, decisions_inhibited = EXCLUDED.decisions_inhibited,
	decisions_paused = EXCLUDED.decisions_paused, decisions_total = EXCLUDED.decisions_total,
	last_trigger_number = EXCLUDED.last_trigger_number, live_ns = EXCLUDED.live_ns,
	paused_ns = EXCLUDED.paused_ns, dead_ns = EXCLUDED.dead_ns, updated_at = NOW()`,
		int64(s.RunNumber), s.Status, s.StartedAt.UTC(), stoppedAt,
		int64(s.CandidatesReceived), int64(s.DecisionsSent), int64(s.DecisionsFailed),
		int64(s.DecisionsInhibited), int64(s.DecisionsPaused), int64(s.DecisionsTotal),
		int64(s.LastTriggerNumber), int64(s.LiveTime), int64(s.PausedTime), int64(s.DeadTime),
	)
	return err
}

// ListRuns returns up to limit runs, most recently started first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]trigger.RunSummary, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_number, status, started_at, stopped_at, candidates_received, decisions_sent,
	decisions_failed, decisions_inhibited, decisions_paused, decisions_total,
	last_trigger_number, live_ns, paused_ns, dead_ns
FROM trigger_runs
ORDER BY started_at DESC, run_number DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []trigger.RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRun loads one run.
func (r *RunRepository) GetRun(ctx context.Context, run trigger.RunNumber) (*trigger.RunSummary, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
SELECT run_number, status, started_at, stopped_at, candidates_received, decisions_sent,
	decisions_failed, decisions_inhibited, decisions_paused, decisions_total,
	last_trigger_number, live_ns, paused_ns, dead_ns
FROM trigger_runs
WHERE run_number = $1`, int64(run))
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trigger.ErrRunNotFound
	}
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*trigger.RunSummary, error) {
	var (
		runNumber                                   int64
		status                                      string
		startedAt                                   time.Time
		stoppedAt                                   sql.NullTime
		received, sent, failed, inhibited, paused   int64
		total, lastNumber, liveNS, pausedNS, deadNS int64
	)
	if err := row.Scan(&runNumber, &status, &startedAt, &stoppedAt, &received, &sent,
		&failed, &inhibited, &paused, &total, &lastNumber, &liveNS, &pausedNS, &deadNS); err != nil {
		return nil, err
	}
	s := &trigger.RunSummary{
		RunNumber:          trigger.RunNumber(runNumber),
		Status:             status,
		StartedAt:          startedAt.UTC(),
		CandidatesReceived: uint64(received),
		DecisionsSent:      uint64(sent),
		DecisionsFailed:    uint64(failed),
		DecisionsInhibited: uint64(inhibited),
		DecisionsPaused:    uint64(paused),
		DecisionsTotal:     uint64(total),
		LastTriggerNumber:  trigger.TriggerNumber(lastNumber),
		LiveTime:           time.Duration(liveNS),
		PausedTime:         time.Duration(pausedNS),
		DeadTime:           time.Duration(deadNS),
	}
	if stoppedAt.Valid {
		s.StoppedAt = stoppedAt.Time.UTC()
	}
	return s, nil
}
