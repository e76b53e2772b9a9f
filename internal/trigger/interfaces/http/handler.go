package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"daq-trigger/internal/audit"
	"daq-trigger/internal/auth"
	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
	"daq-trigger/internal/trigger/interfaces/report"
)

const (
	defaultListLimit = 50
	maxBodyBytes     = 1 << 20
)

// Engine is the part of the decision engine exposed over HTTP.
type Engine interface {
	Configure(params application.ConfParams) error
	Start(ctx context.Context, run trigger.RunNumber) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Scrap() error
	Snapshot() application.Snapshot
	RecentCandidates(begin, end trigger.Timestamp) []trigger.Candidate
}

// Handler serves the trigger control and run history API.
type Handler struct {
	engine      Engine
	runs        application.RunReader
	broker      *SSEBroker
	auditLogger audit.Logger
	logger      logrus.FieldLogger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuditLogger records every control command in auditLogger.
func WithAuditLogger(auditLogger audit.Logger) Option {
	return func(h *Handler) { h.auditLogger = auditLogger }
}

// NewHandler constructs a handler. runs and broker may be nil.
func NewHandler(engine Engine, runs application.RunReader, broker *SSEBroker, logger logrus.FieldLogger, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("trigger handler: nil engine")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{engine: engine, runs: runs, broker: broker, logger: logger.WithField("component", "trigger-http")}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/trigger/configure", h.handleConfigure).Methods(http.MethodPost)
	api.HandleFunc("/trigger/start", h.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/trigger/stop", h.command("trigger.stop", h.engine.Stop)).Methods(http.MethodPost)
	api.HandleFunc("/trigger/pause", h.command("trigger.pause", h.engine.Pause)).Methods(http.MethodPost)
	api.HandleFunc("/trigger/resume", h.command("trigger.resume", h.engine.Resume)).Methods(http.MethodPost)
	api.HandleFunc("/trigger/scrap", h.command("trigger.scrap", func(context.Context) error { return h.engine.Scrap() })).Methods(http.MethodPost)
	api.HandleFunc("/trigger/status", h.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/trigger/candidates", h.handleCandidates).Methods(http.MethodGet)
	api.HandleFunc("/trigger/events", h.handleEvents).Methods(http.MethodGet)

	api.HandleFunc("/runs", h.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{run:[0-9]+}", h.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{run:[0-9]+}/report.pdf", h.handleReport(report.ContentTypePDF, report.BuildRunPDF)).Methods(http.MethodGet)
	api.HandleFunc("/runs/{run:[0-9]+}/report.xlsx", h.handleReport(report.ContentTypeXLSX, report.BuildRunXLSX)).Methods(http.MethodGet)
}

type startRequest struct {
	RunNumber trigger.RunNumber `json:"run_number"`
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var params application.ConfParams
	body, ok := decodeBody(w, r, &params)
	if !ok {
		return
	}
	err := h.engine.Configure(params)
	h.audit(r, "trigger.configure", h.engine.Snapshot().RunNumber, body, err)
	if err != nil {
		h.respondError(w, "configure", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	err := h.engine.Start(r.Context(), req.RunNumber)
	h.audit(r, "trigger.start", req.RunNumber, body, err)
	if err != nil {
		h.respondError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) command(action string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(r.Context())
		snap := h.engine.Snapshot()
		h.audit(r, action, snap.RunNumber, nil, err)
		if err != nil {
			h.respondError(w, action, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (h *Handler) audit(r *http.Request, action string, run trigger.RunNumber, body []byte, err error) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		Actor:     auth.SubjectFromContext(r.Context()),
		Role:      string(auth.RoleFromContext(r.Context())),
		Action:    action,
		RunNumber: uint32(run),
		Outcome:   audit.OutcomeOK,
		Metadata:  body,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err != nil {
		entry.Outcome = audit.OutcomeRejected
		entry.Error = err.Error()
	}
	if logErr := h.auditLogger.Log(r.Context(), entry); logErr != nil {
		h.logger.WithError(logErr).WithField("action", action).Warn("audit log failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return nil, false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	begin, err := parseUintQuery(r, "begin")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseUintQuery(r, "end")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if end < begin {
		http.Error(w, "end must not be before begin", http.StatusBadRequest)
		return
	}
	candidates := h.engine.RecentCandidates(trigger.Timestamp(begin), trigger.Timestamp(end))
	if candidates == nil {
		candidates = []trigger.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history disabled", http.StatusServiceUnavailable)
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []trigger.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleReport(contentType string, build func(*trigger.RunSummary) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := h.loadRun(w, r)
		if !ok {
			return
		}
		body, err := build(run)
		if err != nil {
			h.respondError(w, "report", err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*trigger.RunSummary, bool) {
	if h.runs == nil {
		http.Error(w, "run history disabled", http.StatusServiceUnavailable)
		return nil, false
	}
	number, err := strconv.ParseUint(mux.Vars(r)["run"], 10, 32)
	if err != nil {
		http.Error(w, "invalid run number", http.StatusBadRequest)
		return nil, false
	}
	run, err := h.runs.GetRun(r.Context(), trigger.RunNumber(number))
	if err != nil {
		h.respondError(w, "get run", err)
		return nil, false
	}
	return run, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("op", op).Error("request failed")
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrNotConfigured),
		errors.Is(err, application.ErrAlreadyRunning),
		errors.Is(err, application.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, application.ErrNoLinks),
		errors.Is(err, application.ErrMissingConnection),
		errors.Is(err, application.ErrInvalidTimeout),
		errors.Is(err, application.ErrUnknownConnection),
		errors.Is(err, trigger.ErrUnknownSystemType):
		return http.StatusBadRequest
	case errors.Is(err, trigger.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseUintQuery(r *http.Request, key string) (uint64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, errors.New(key + " is required")
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be an unsigned integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
