package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"daq-trigger/internal/audit"
	"daq-trigger/internal/auth"
	"daq-trigger/internal/eventing"
	"daq-trigger/internal/notify"
	"daq-trigger/internal/observability/metrics"
	"daq-trigger/internal/timing"
	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
	"daq-trigger/internal/trigger/infrastructure/kafkaio"
	"daq-trigger/internal/trigger/infrastructure/memory"
	"daq-trigger/internal/trigger/infrastructure/postgres"
	triggerhttp "daq-trigger/internal/trigger/interfaces/http"
	windowing "daq-trigger/internal/windowing/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trigger decision engine with its control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logrus.StandardLogger())
	},
}

type runStore interface {
	application.RunStore
	application.RunReader
}

func serve(ctx context.Context, cfg Config, logger *logrus.Logger) error {
	metrics.Init()

	conns, closeConns, err := buildConnections(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeConns()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	var (
		store       runStore
		auditLogger audit.Logger
	)
	if db != nil {
		defer db.Close()
		store = postgres.NewRunRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		store = memory.NewRunRepository()
		auditLogger = audit.NewLogrusLogger(logger)
	}

	bus := eventing.NewBus(logger)
	history, err := windowing.NewBuffer[trigger.Candidate](cfg.Buffer.Capacity)
	if err != nil {
		return fmt.Errorf("candidate history: %w", err)
	}
	engine, err := application.NewEngine(conns,
		application.WithRunStore(store),
		application.WithEventPublisher(bus),
		application.WithCandidateHistory(history),
		application.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	prometheus.MustRegister(metrics.NewRunCollector(engine.MetricsSample))

	if len(cfg.Trigger.Links) > 0 {
		if err := engine.Configure(cfg.Trigger); err != nil {
			return fmt.Errorf("configure from file: %w", err)
		}
	}

	broker := triggerhttp.NewSSEBroker()
	bus.Subscribe(broker.Handle)
	if cfg.Notify.WebhookURL != "" {
		notifier, err := buildNotifier(cfg.Notify, logger)
		if err != nil {
			return err
		}
		defer notifier.Close()
		bus.Subscribe(notifier.Handle)
	}

	if cfg.Timing.Enabled {
		if err := startTimingMaker(ctx, cfg, conns, logger); err != nil {
			return err
		}
	}

	handler, err := triggerhttp.NewHandler(engine, store, broker, logger, triggerhttp.WithAuditLogger(auditLogger))
	if err != nil {
		return err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	handler.Register(router)
	if registry, ok := conns.(*memoryRegistry); ok {
		ingest, err := triggerhttp.NewIngestHandler(registry.candidates, registry.inhibits, logger)
		if err != nil {
			return err
		}
		ingest.Register(router)
		logger.Info("in-process transport fed through /api/v1/ingest")
	}
	if !cfg.Auth.Disabled {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		router.Use(auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy).Wrap)
	} else {
		logger.Warn("control API authentication disabled")
	}

	var h http.Handler = router
	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(h)
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if engine.Snapshot().Running {
		if err := engine.Stop(shutdownCtx); err != nil && !errors.Is(err, application.ErrNotRunning) {
			logger.WithError(err).Warn("stop run on shutdown failed")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func buildConnections(ctx context.Context, cfg Config, logger *logrus.Logger) (application.Connections, func(), error) {
	if cfg.UseKafka() {
		conns, err := kafkaio.NewConnections(cfg.Kafka, logger)
		if err != nil {
			return nil, nil, err
		}
		return conns, func() {
			if err := conns.Close(); err != nil {
				logger.WithError(err).Warn("close kafka connections failed")
			}
		}, nil
	}

	registry, err := newMemoryRegistry(cfg.Trigger, cfg.Memory.QueueCapacity)
	if err != nil {
		return nil, nil, err
	}
	logger.Warn("no kafka brokers configured, using in-process transport")
	drainCtx, cancel := context.WithCancel(ctx)
	go logDecisions(drainCtx, registry.decisions, logger)
	return registry, cancel, nil
}

type memoryRegistry struct {
	*memory.Registry
	candidates *memory.Queue[trigger.Candidate]
	decisions  *memory.Queue[trigger.Decision]
	inhibits   *memory.InhibitFeed
}

func newMemoryRegistry(params application.ConfParams, capacity int) (*memoryRegistry, error) {
	candidates, err := memory.NewQueue[trigger.Candidate](capacity)
	if err != nil {
		return nil, err
	}
	decisions, err := memory.NewQueue[trigger.Decision](capacity)
	if err != nil {
		return nil, err
	}
	inhibits := memory.NewInhibitFeed()
	registry := memory.NewRegistry()
	registry.AddCandidateQueue(nameOr(params.CandidateConnection, "candidates"), candidates)
	registry.AddDecisionQueue(nameOr(params.DecisionConnection, "decisions"), decisions)
	registry.AddInhibitFeed(nameOr(params.InhibitConnection, "busy"), inhibits)
	return &memoryRegistry{Registry: registry, candidates: candidates, decisions: decisions, inhibits: inhibits}, nil
}

func logDecisions(ctx context.Context, decisions *memory.Queue[trigger.Decision], logger logrus.FieldLogger) {
	for ctx.Err() == nil {
		d, ok, _ := decisions.TryReceive(ctx, 100*time.Millisecond)
		if !ok {
			continue
		}
		logger.WithFields(logrus.Fields{
			"run":            d.RunNumber,
			"trigger_number": d.TriggerNumber,
			"timestamp":      d.TriggerTimestamp,
		}).Debug("decision")
	}
}

// openDatabase returns nil when no database is configured.
func openDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func buildNotifier(cfg NotifyConfig, logger logrus.FieldLogger) (*notify.Notifier, error) {
	channel, err := notify.NewWebhookChannel(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}
	opts := []notify.Option{
		notify.WithLogger(logger),
		notify.WithDedupeWindow(cfg.DedupeWindow),
		notify.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.InhibitAlerts {
		opts = append(opts, notify.WithInhibitAlerts())
	}
	if base := strings.TrimRight(cfg.PublicBaseURL, "/"); base != "" {
		opts = append(opts, notify.WithReportURLResolver(func(run trigger.RunNumber) string {
			return fmt.Sprintf("%s/api/v1/runs/%d/report.pdf", base, run)
		}))
	}
	return notify.NewNotifier(channel, tpl, opts...)
}

func startTimingMaker(ctx context.Context, cfg Config, conns application.Connections, logger logrus.FieldLogger) error {
	kconns, ok := conns.(*kafkaio.Connections)
	if !ok {
		return errors.New("timing maker requires the kafka transport")
	}
	maker := timing.NewMaker(timing.WithQueueTimeout(cfg.Timing.QueueTimeout), timing.WithLogger(logger))
	if err := maker.Configure(cfg.Timing.Signals); err != nil {
		return fmt.Errorf("timing maker: %w", err)
	}
	signals, err := kafkaio.SignalReader[timing.TimeStampedData](kconns, cfg.Timing.SignalConnection)
	if err != nil {
		return err
	}
	candidates, err := kconns.CandidateWriter(cfg.Timing.CandidateConnection)
	if err != nil {
		return err
	}
	go func() {
		defer signals.Close()
		defer candidates.Close()
		maker.Run(ctx, signals, candidates)
	}()
	return nil
}

func nameOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
