package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

const defaultIngestTimeout = 100 * time.Millisecond

// CandidateQueue accepts candidates for the decision loop.
type CandidateQueue interface {
	Send(ctx context.Context, candidate trigger.Candidate, timeout time.Duration) error
}

// InhibitPublisher fans busy/idle notifications out to subscribers.
type InhibitPublisher interface {
	Publish(ctx context.Context, msg trigger.Inhibit)
}

// IngestHandler feeds the in-process transport over HTTP.
type IngestHandler struct {
	candidates CandidateQueue
	inhibits   InhibitPublisher
	timeout    time.Duration
	logger     logrus.FieldLogger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(candidates CandidateQueue, inhibits InhibitPublisher, logger logrus.FieldLogger) (*IngestHandler, error) {
	if candidates == nil || inhibits == nil {
		return nil, errors.New("ingest handler: nil queue")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IngestHandler{
		candidates: candidates,
		inhibits:   inhibits,
		timeout:    defaultIngestTimeout,
		logger:     logger.WithField("component", "trigger-ingest"),
	}, nil
}

// Register mounts the ingest routes.
func (h *IngestHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1/ingest").Subrouter()
	api.HandleFunc("/candidates", h.handleCandidates).Methods(http.MethodPost)
	api.HandleFunc("/inhibit", h.handleInhibit).Methods(http.MethodPost)
}

type ingestResult struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func (h *IngestHandler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var candidates []trigger.Candidate
	if _, ok := decodeBody(w, r, &candidates); !ok {
		return
	}
	for i, c := range candidates {
		if err := h.candidates.Send(r.Context(), c, h.timeout); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, application.ErrSendTimeout) {
				status = http.StatusServiceUnavailable
			}
			h.logger.WithError(err).WithField("accepted", i).Warn("candidate ingest stopped")
			writeJSON(w, status, ingestResult{Accepted: i, Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusAccepted, ingestResult{Accepted: len(candidates)})
}

func (h *IngestHandler) handleInhibit(w http.ResponseWriter, r *http.Request) {
	var msg trigger.Inhibit
	if _, ok := decodeBody(w, r, &msg); !ok {
		return
	}
	h.inhibits.Publish(r.Context(), msg)
	writeJSON(w, http.StatusAccepted, ingestResult{Accepted: 1})
}
