package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FillsGeneratedFields(t *testing.T) {
	entry := Normalize(Entry{Action: "trigger.start", Metadata: json.RawMessage(`{"run_number":3}`)})
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, OutcomeOK, entry.Outcome)
	assert.Equal(t, DigestJSON([]byte(`{"run_number":3}`)), entry.PayloadDigest)
	assert.Len(t, entry.PayloadDigest, 64)

	kept := Normalize(Entry{ID: "fixed", Outcome: OutcomeRejected})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, OutcomeRejected, kept.Outcome)
	assert.Empty(t, kept.PayloadDigest)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/trigger/start", nil)
	r.RemoteAddr = "10.0.0.5:4711"
	assert.Equal(t, "10.0.0.5", ClientIP(r))

	r.Header.Set("X-Real-IP", " 10.0.0.6 ")
	assert.Equal(t, "10.0.0.6", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.1")
	assert.Equal(t, "192.168.1.1", ClientIP(r))

	assert.Empty(t, ClientIP(nil))
}

func TestLogrusLogger_WritesFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l := NewLogrusLogger(logger)
	require.NoError(t, l.Log(context.Background(), Entry{
		Actor:     "alice",
		Role:      "operator",
		Action:    "trigger.stop",
		RunNumber: 12,
		Outcome:   OutcomeRejected,
		Error:     "trigger engine: no run in progress",
	}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "control command", entry.Message)
	assert.Equal(t, "trigger.stop", entry.Data["action"])
	assert.Equal(t, uint32(12), entry.Data["run"])
	assert.Equal(t, OutcomeRejected, entry.Data["outcome"])
	assert.Equal(t, "audit", entry.Data["component"])
}

func TestRepository_NilDB(t *testing.T) {
	assert.Nil(t, NewRepository(nil))
	var repo *Repository
	assert.Error(t, repo.Log(context.Background(), Entry{}))
}
