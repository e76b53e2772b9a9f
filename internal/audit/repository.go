package audit

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"
)

// Repository writes audit entries to control_audit_logs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = Normalize(entry)
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO control_audit_logs (
	id, actor, role, action, run_number, outcome, error,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, entry.ID, entry.Actor, entry.Role, entry.Action, int64(entry.RunNumber), entry.Outcome, entry.Error,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// LogrusLogger writes audit entries as structured log lines.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger constructs a log-backed audit logger.
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: logger.WithField("component", "audit")}
}

// Log writes entry at info level.
func (l *LogrusLogger) Log(_ context.Context, entry Entry) error {
	entry = Normalize(entry)
	fields := logrus.Fields{
		"audit_id": entry.ID,
		"actor":    entry.Actor,
		"role":     entry.Role,
		"action":   entry.Action,
		"outcome":  entry.Outcome,
		"ip":       entry.IP,
	}
	if entry.RunNumber != 0 {
		fields["run"] = entry.RunNumber
	}
	if entry.PayloadDigest != "" {
		fields["digest"] = entry.PayloadDigest
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}
	l.logger.WithFields(fields).Info("control command")
	return nil
}
